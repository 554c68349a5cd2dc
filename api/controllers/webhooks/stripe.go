package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/caldercommerce/storefront/api/responses"
	"github.com/caldercommerce/storefront/internal/payments"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/metrics"
)

const stripeConsumer = "stripe-webhook"

type stripeWebhookService interface {
	HandleEvent(ctx context.Context, event payments.ProviderEvent) (payments.Outcome, error)
}

type stripeWebhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID string) (bool, error)
	Delete(ctx context.Context, consumer string, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook reconciles payment intent lifecycle events. Events the
// processor has already delivered, and events for intents we never issued,
// are acknowledged so Stripe stops retrying them.
func StripeWebhook(svc stripeWebhookService, client stripeClient, guard stripeWebhookGuard, m *metrics.CommerceMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify signature"))
			return
		}

		status, relevant := paymentStatusForEventType(event.Type)
		if !relevant {
			m.IncWebhookEvent(string(event.Type), string(payments.OutcomeIgnored))
			responses.WriteSuccess(w, nil)
			return
		}

		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, stripeConsumer, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			m.IncWebhookEvent(string(event.Type), string(payments.OutcomeReplayed))
			responses.WriteSuccess(w, nil)
			return
		}

		providerEvent := payments.ProviderEvent{
			EventID:         event.ID,
			PaymentIntentID: intent.ID,
			Status:          status,
		}
		if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
			chargeID := intent.LatestCharge.ID
			providerEvent.ChargeID = &chargeID
		}

		outcome, err := svc.HandleEvent(ctx, providerEvent)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeUnknownOrder) {
			// Drop the redis marker so a Stripe retry reprocesses the event.
			_ = guard.Delete(ctx, stripeConsumer, event.ID)
			m.IncWebhookEvent(string(event.Type), string(payments.OutcomeError))
			responses.WriteError(ctx, logg, w, err)
			return
		}

		m.IncWebhookEvent(string(event.Type), string(outcome))
		if logg != nil {
			fields := logg.WithFields(ctx, map[string]any{
				"event_id":          event.ID,
				"event_type":        string(event.Type),
				"payment_intent_id": intent.ID,
				"outcome":           string(outcome),
			})
			logg.Info(fields, "stripe.event.handled")
		}
		responses.WriteSuccess(w, nil)
	}
}

func paymentStatusForEventType(eventType stripe.EventType) (enums.PaymentStatus, bool) {
	switch eventType {
	case stripe.EventTypePaymentIntentSucceeded:
		return enums.PaymentStatusSucceeded, true
	case stripe.EventTypePaymentIntentPaymentFailed:
		return enums.PaymentStatusFailed, true
	case stripe.EventTypePaymentIntentCanceled:
		return enums.PaymentStatusCanceled, true
	default:
		return "", false
	}
}
