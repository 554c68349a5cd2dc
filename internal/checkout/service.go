package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/cart"
	"github.com/caldercommerce/storefront/internal/orders"
	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/outbox/payloads"
)

// variantLoader is the slice of the catalog checkout needs for price snapshots.
type variantLoader interface {
	GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
}

// Service converts a cart into a pending order exactly once. The cart status
// CAS plus the unique order-per-cart index make concurrent conversions
// single-winner; everything runs in one transaction so a failed conversion
// leaves the cart shoppable.
type Service interface {
	Execute(ctx context.Context, cartID uuid.UUID) (*models.Order, error)
}

type service struct {
	cartRepo     cart.Repository
	orderRepo    orders.Repository
	reservations reservations.Service
	variants     variantLoader
	dbClient     *db.Client
	outbox       *outbox.Service
	logg         *logger.Logger
}

// NewService wires the cart-to-order converter.
func NewService(
	cartRepo cart.Repository,
	orderRepo orders.Repository,
	reservationSvc reservations.Service,
	variants variantLoader,
	dbClient *db.Client,
	outboxSvc *outbox.Service,
	logg *logger.Logger,
) (Service, error) {
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if variants == nil {
		return nil, fmt.Errorf("variant loader required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{
		cartRepo:     cartRepo,
		orderRepo:    orderRepo,
		reservations: reservationSvc,
		variants:     variants,
		dbClient:     dbClient,
		outbox:       outboxSvc,
		logg:         logg,
	}, nil
}

func (s *service) Execute(ctx context.Context, cartID uuid.UUID) (*models.Order, error) {
	now := time.Now()
	var order *models.Order

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		orderRepo := s.orderRepo.WithTx(tx)

		loaded, err := cartRepo.GetWithItems(ctx, cartID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if loaded == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		switch loaded.Status {
		case enums.CartStatusActive:
		case enums.CartStatusOrdered:
			return pkgerrors.New(pkgerrors.CodeCartAlreadyConverted, "cart already converted to an order")
		default:
			return pkgerrors.New(pkgerrors.CodeConflict, "cart is no longer active")
		}
		if len(loaded.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeCartEmpty, "cart has no items")
		}

		affected, err := cartRepo.MarkOrdered(ctx, cartID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeCartAlreadyConverted, "cart already converted to an order")
		}

		order, err = s.buildOrder(ctx, loaded)
		if err != nil {
			return err
		}
		if err := orderRepo.Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "ux_orders_cart_id") {
				return pkgerrors.New(pkgerrors.CodeCartAlreadyConverted, "cart already converted to an order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		if err := orderRepo.InsertItems(ctx, order.Items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		committed, err := s.reservations.CommitToOrder(ctx, tx, cartID, order.ID, now)
		if err != nil {
			return err
		}
		held := make(map[uuid.UUID]int, len(committed))
		for _, res := range committed {
			held[res.VariantID] += res.Quantity
		}
		for _, item := range loaded.Items {
			if held[item.VariantID] < item.Quantity {
				return pkgerrors.New(pkgerrors.CodeReservationMissing, "cart item hold is missing or expired").
					WithDetails(map[string]any{"variant_id": item.VariantID})
			}
		}

		if s.outbox != nil {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data: payloads.OrderCreatedEvent{
					OrderID:   order.ID,
					CartID:    cartID,
					Total:     order.Total,
					Currency:  order.Currency,
					ItemCount: len(order.Items),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithCartID(ctx, cartID.String())
		s.logg.Info(s.logg.WithOrderID(logCtx, order.ID.String()), "cart converted to order")
	}
	return order, nil
}

// buildOrder snapshots cart items with the variant prices in effect right now.
func (s *service) buildOrder(ctx context.Context, loaded *models.Cart) (*models.Order, error) {
	items := make([]models.OrderItem, 0, len(loaded.Items))
	subtotal := decimal.Zero
	for _, item := range loaded.Items {
		variant, err := s.variants.GetVariant(ctx, item.VariantID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if variant == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant no longer exists")
		}
		line := variant.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: variant.Price,
			Currency:  loaded.Currency,
		})
	}
	return &models.Order{
		CartID:   loaded.ID,
		Status:   enums.OrderStatusPending,
		Subtotal: &subtotal,
		Total:    subtotal,
		Currency: loaded.Currency,
		Items:    items,
	}, nil
}
