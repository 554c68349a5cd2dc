package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/orders"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
)

// intentCreator is the slice of the Stripe client this service needs.
type intentCreator interface {
	CreatePaymentIntent(ctx context.Context, orderID string, amount int64, currency string) (*stripesdk.PaymentIntent, error)
}

// ProviderEvent is a verified webhook notification, reduced to the fields the
// reconciliation flow acts on.
type ProviderEvent struct {
	EventID         string
	PaymentIntentID string
	Status          enums.PaymentStatus
	ChargeID        *string
}

// Outcome reports how a webhook event was handled.
type Outcome string

const (
	// OutcomeProcessed means the event changed payment or order state.
	OutcomeProcessed Outcome = "processed"
	// OutcomeReplayed means the event id was already recorded; nothing ran.
	OutcomeReplayed Outcome = "replayed"
	// OutcomeUnknownOrder means no order carries the intent; the event id is
	// still recorded so the provider's retries stay no-ops.
	OutcomeUnknownOrder Outcome = "unknown_order"
	// OutcomeIgnored means the order had already moved past the transition
	// the event asked for, typically a late success on a cancelled order.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeError means processing failed and the event was not recorded,
	// so the provider should retry.
	OutcomeError Outcome = "error"
)

// errDuplicateEvent aborts the transaction when the event id marker already
// exists; the caller maps it to OutcomeReplayed.
var errDuplicateEvent = errors.New("payment event already recorded")

// Service opens payment intents and reconciles provider webhooks against the
// order status machine. Each event id is processed at most once.
type Service interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	HandleEvent(ctx context.Context, event ProviderEvent) (Outcome, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

type service struct {
	repo       Repository
	ordersSvc  orders.Service
	ordersRepo orders.Repository
	intents    intentCreator
	dbClient   *db.Client
	logg       *logger.Logger
}

// NewService wires payment intent creation and webhook reconciliation.
func NewService(
	repo Repository,
	ordersSvc orders.Service,
	ordersRepo orders.Repository,
	intents intentCreator,
	dbClient *db.Client,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if intents == nil {
		return nil, fmt.Errorf("payment intent client required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{
		repo:       repo,
		ordersSvc:  ordersSvc,
		ordersRepo: ordersRepo,
		intents:    intents,
		dbClient:   dbClient,
		logg:       logg,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	order, err := s.ordersSvc.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("payment intent can only be opened for a pending order, order is %s", order.Status))
	}

	amount := order.Total.Mul(decimal.NewFromInt(100)).IntPart()
	intent, err := s.intents.CreatePaymentIntent(ctx, order.ID.String(), amount, order.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	payment := &models.Payment{
		OrderID:               order.ID,
		Status:                enums.PaymentStatusInitiated,
		StripePaymentIntentID: intent.ID,
		Amount:                order.Total,
		Currency:              order.Currency,
	}
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ordersRepo.WithTx(tx).SetPaymentIntent(ctx, order.ID, intent.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment intent to order")
		}
		if err := s.repo.WithTx(tx).InsertPayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "payment_intent_id", intent.ID), "payment intent opened")
	}
	return payment, nil
}

// HandleEvent records the event id and applies the matching order transition
// in one transaction. A failure after the marker insert rolls both back, so
// the provider's retry reprocesses the event from scratch.
func (s *service) HandleEvent(ctx context.Context, event ProviderEvent) (Outcome, error) {
	if event.EventID == "" {
		return OutcomeError, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if event.PaymentIntentID == "" {
		return OutcomeError, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if !event.Status.IsValid() {
		return OutcomeError, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status")
	}

	outcome := OutcomeProcessed
	var unknownOrder bool
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		marker := &models.PaymentEvent{
			EventID:         event.EventID,
			PaymentIntentID: event.PaymentIntentID,
			Status:          event.Status,
		}
		if err := repo.InsertEvent(ctx, marker); err != nil {
			if db.IsUniqueViolation(err, "ux_payment_events_event_id") {
				return errDuplicateEvent
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment event")
		}

		order, err := s.ordersRepo.WithTx(tx).GetByPaymentIntent(ctx, event.PaymentIntentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by intent")
		}
		if order == nil {
			// commit the marker anyway so retries of this event stay no-ops
			unknownOrder = true
			return nil
		}

		if _, err := repo.UpdateStatusByIntent(ctx, event.PaymentIntentID, event.Status, event.ChargeID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment attempts")
		}

		var target enums.OrderStatus
		switch event.Status {
		case enums.PaymentStatusSucceeded:
			target = enums.OrderStatusPaid
		case enums.PaymentStatusFailed, enums.PaymentStatusCanceled:
			target = enums.OrderStatusFailed
		default:
			// intermediate provider state, payment rows already stamped
			return nil
		}

		if _, err := s.ordersSvc.TransitionTx(ctx, tx, order.ID, target); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition) {
				// late event for an order that already settled elsewhere;
				// keep the marker so the provider stops retrying
				outcome = OutcomeIgnored
				if s.logg != nil {
					logCtx := s.logg.WithOrderID(ctx, order.ID.String())
					s.logg.Warn(s.logg.WithField(logCtx, "event_id", event.EventID), "stale payment event ignored")
				}
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateEvent) {
			return OutcomeReplayed, nil
		}
		return OutcomeError, err
	}
	if unknownOrder {
		return OutcomeUnknownOrder, pkgerrors.New(pkgerrors.CodeUnknownOrder, "no order for payment intent").
			WithDetails(map[string]string{"payment_intent_id": event.PaymentIntentID})
	}
	return outcome, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.ordersSvc.Get(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}
