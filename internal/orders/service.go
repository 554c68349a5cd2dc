package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/inventory"
	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/outbox/payloads"
	"github.com/caldercommerce/storefront/pkg/pagination"
)

// Service drives the order lifecycle. All status changes funnel through
// Transition's compare-and-set, so the webhook stream, the API, and the
// sweeper can race without corrupting stock.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, status *enums.OrderStatus) (pagination.Page[models.Order], error)
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	// TransitionTx applies a transition inside the caller's transaction, for
	// flows that must commit atomically with their own bookkeeping.
	TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	Update(ctx context.Context, orderID uuid.UUID, input UpdateOrderInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// UpdateOrderInput enriches an order after creation. Nil fields are left
// untouched.
type UpdateOrderInput struct {
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	CustomerName *string `json:"customer_name,omitempty"`

	ShippingName         *string `json:"shipping_name,omitempty"`
	ShippingAddressLine1 *string `json:"shipping_address_line1,omitempty"`
	ShippingAddressLine2 *string `json:"shipping_address_line2,omitempty"`
	ShippingCity         *string `json:"shipping_city,omitempty"`
	ShippingState        *string `json:"shipping_state,omitempty"`
	ShippingPostalCode   *string `json:"shipping_postal_code,omitempty"`
	ShippingCountry      *string `json:"shipping_country,omitempty"`

	Subtotal     *decimal.Decimal `json:"subtotal,omitempty"`
	Tax          *decimal.Decimal `json:"tax,omitempty"`
	ShippingCost *decimal.Decimal `json:"shipping_cost,omitempty"`
	Total        *decimal.Decimal `json:"total,omitempty"`
}

type service struct {
	repo         Repository
	inventory    inventory.Service
	reservations reservations.Service
	dbClient     *db.Client
	outbox       *outbox.Service
	logg         *logger.Logger
}

// NewService wires the order status machine.
func NewService(
	repo Repository,
	inventorySvc inventory.Service,
	reservationSvc reservations.Service,
	dbClient *db.Client,
	outboxSvc *outbox.Service,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{
		repo:         repo,
		inventory:    inventorySvc,
		reservations: reservationSvc,
		dbClient:     dbClient,
		outbox:       outboxSvc,
		logg:         logg,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) GetByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	order, err := s.repo.GetByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by intent")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownOrder, "no order for payment intent")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, status *enums.OrderStatus) (pagination.Page[models.Order], error) {
	if status != nil && !status.IsValid() {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	rows, total, err := s.repo.List(ctx, params, status)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.NewPage(rows, params, total), nil
}

func (s *service) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	var order *models.Order
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.TransitionTx(ctx, tx, orderID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for order transition")
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status == target {
		return order, nil
	}
	if !CanTransition(order.Status, target) {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, target))
	}

	affected, err := repo.UpdateStatus(ctx, orderID, order.Status, target)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order status changed concurrently")
	}
	if err := s.applySideEffects(ctx, tx, order, target); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Info(s.logg.WithField(logCtx, "status", target.String()), "order transitioned")
	}
	order.Status = target
	return order, nil
}

// applySideEffects runs in the same transaction as the status CAS so stock
// and status can never diverge.
func (s *service) applySideEffects(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus) error {
	switch target {
	case enums.OrderStatusPaid:
		for _, item := range order.Items {
			if err := s.inventory.Commit(ctx, tx, order.ID, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		// the commits above already decremented reserved quantity; retire the
		// hold rows so they stop counting against it
		if _, err := s.reservations.FulfillForOrder(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.emit(ctx, tx, order.ID, enums.EventOrderPaid, payloads.OrderPaidEvent{
			OrderID:         order.ID,
			PaymentIntentID: stringValue(order.StripePaymentIntentID),
			PaidAt:          time.Now(),
		})

	case enums.OrderStatusFailed:
		if _, err := s.reservations.ReleaseForOrder(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.emit(ctx, tx, order.ID, enums.EventOrderFailed, payloads.OrderFailedEvent{
			OrderID:         order.ID,
			PaymentIntentID: stringValue(order.StripePaymentIntentID),
		})

	case enums.OrderStatusCancelled:
		if _, err := s.reservations.ReleaseForOrder(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.emit(ctx, tx, order.ID, enums.EventOrderCancelled, payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			CancelledAt: time.Now(),
		})

	case enums.OrderStatusReturned, enums.OrderStatusRefunded:
		// bookkeeping only; stock re-entry is a manual adjustment
		return nil

	default:
		return nil
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, eventType enums.OutboxEventType, data any) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          data,
	})
}

func (s *service) Update(ctx context.Context, orderID uuid.UUID, input UpdateOrderInput) (*models.Order, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	fields := buildUpdateFields(input)
	if len(fields) == 0 {
		return s.Get(ctx, orderID)
	}
	if err := s.repo.UpdateFields(ctx, orderID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	return s.Get(ctx, orderID)
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.Transition(ctx, orderID, enums.OrderStatusCancelled)
}

// buildUpdateFields maps only the provided fields to columns.
func buildUpdateFields(input UpdateOrderInput) map[string]any {
	fields := map[string]any{}
	set := func(column string, value any, present bool) {
		if present {
			fields[column] = value
		}
	}
	set("email", input.Email, input.Email != nil)
	set("customer_name", input.CustomerName, input.CustomerName != nil)
	set("shipping_name", input.ShippingName, input.ShippingName != nil)
	set("shipping_address_line1", input.ShippingAddressLine1, input.ShippingAddressLine1 != nil)
	set("shipping_address_line2", input.ShippingAddressLine2, input.ShippingAddressLine2 != nil)
	set("shipping_city", input.ShippingCity, input.ShippingCity != nil)
	set("shipping_state", input.ShippingState, input.ShippingState != nil)
	set("shipping_postal_code", input.ShippingPostalCode, input.ShippingPostalCode != nil)
	set("shipping_country", input.ShippingCountry, input.ShippingCountry != nil)
	set("subtotal", input.Subtotal, input.Subtotal != nil)
	set("tax", input.Tax, input.Tax != nil)
	set("shipping_cost", input.ShippingCost, input.ShippingCost != nil)
	set("total", input.Total, input.Total != nil)
	return fields
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
