package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/caldercommerce/storefront/internal/payments"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
)

func TestStripeWebhook_SuccessAndReplay(t *testing.T) {
	payload, header := buildSignedIntentEvent(t, stripe.EventTypePaymentIntentSucceeded)
	service := &fakePaymentService{outcome: payments.OutcomeProcessed}
	guard := newFakeGuard()
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, guard, nil, nil)

	rec := postWebhook(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
	if service.last.Status != "succeeded" {
		t.Fatalf("expected succeeded status, got %s", service.last.Status)
	}
	if service.last.ChargeID == nil || *service.last.ChargeID != "ch_test" {
		t.Fatalf("expected charge id carried through, got %v", service.last.ChargeID)
	}

	rec2 := postWebhook(handler, payload, header)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected replay not processed, call count %d", service.calls)
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	payload, _ := buildSignedIntentEvent(t, stripe.EventTypePaymentIntentSucceeded)
	service := &fakePaymentService{outcome: payments.OutcomeProcessed}
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, newFakeGuard(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not run on invalid signature")
	}
}

func TestStripeWebhook_IrrelevantEventTypeAcknowledged(t *testing.T) {
	payload, header := buildSignedIntentEvent(t, "payment_intent.created")
	service := &fakePaymentService{outcome: payments.OutcomeProcessed}
	guard := newFakeGuard()
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, guard, nil, nil)

	rec := postWebhook(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored type, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("irrelevant event should not reach the service")
	}
	if guard.size() != 0 {
		t.Fatalf("irrelevant event should not consume a marker")
	}
}

func TestStripeWebhook_UnknownOrderAcknowledged(t *testing.T) {
	payload, header := buildSignedIntentEvent(t, stripe.EventTypePaymentIntentSucceeded)
	service := &fakePaymentService{
		outcome: payments.OutcomeUnknownOrder,
		err:     pkgerrors.New(pkgerrors.CodeUnknownOrder, "no order matches"),
	}
	guard := newFakeGuard()
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, guard, nil, nil)

	rec := postWebhook(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected unknown order acknowledged with 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if guard.size() != 1 {
		t.Fatalf("unknown order should keep the redis marker, have %d", guard.size())
	}
}

func TestStripeWebhook_ServiceErrorReleasesMarker(t *testing.T) {
	payload, header := buildSignedIntentEvent(t, stripe.EventTypePaymentIntentSucceeded)
	service := &fakePaymentService{
		outcome: payments.OutcomeError,
		err:     pkgerrors.New(pkgerrors.CodeDependency, "db unavailable"),
	}
	guard := newFakeGuard()
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, guard, nil, nil)

	rec := postWebhook(handler, payload, header)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if guard.size() != 0 {
		t.Fatalf("failed event should drop the marker so retries reprocess")
	}
}

func postWebhook(handler http.HandlerFunc, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func buildSignedIntentEvent(t *testing.T, eventType stripe.EventType) ([]byte, string) {
	t.Helper()

	intent := &stripe.PaymentIntent{
		ID:           "pi_" + uuid.NewString(),
		LatestCharge: &stripe.Charge{ID: "ch_test"},
	}
	rawIntent, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       eventType,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data: &stripe.EventData{
			Raw: rawIntent,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	header := buildStripeSignatureHeader(payload, "whsec_test", time.Now().Unix())
	return payload, header
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakePaymentService struct {
	outcome payments.Outcome
	err     error
	calls   int
	last    payments.ProviderEvent
}

func (f *fakePaymentService) HandleEvent(ctx context.Context, event payments.ProviderEvent) (payments.Outcome, error) {
	f.calls++
	f.last = event
	return f.outcome, f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

type fakeGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]struct{}{}}
}

func (g *fakeGuard) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := consumer + ":" + eventID
	if _, ok := g.seen[key]; ok {
		return true, nil
	}
	g.seen[key] = struct{}{}
	return false, nil
}

func (g *fakeGuard) Delete(ctx context.Context, consumer string, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, consumer+":"+eventID)
	return nil
}

func (g *fakeGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
