package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/config"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/outbox/payloads"
)

const abandonBatchSize = 200

// variantLoader is the slice of the catalog the cart needs.
type variantLoader interface {
	GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
}

// Service manages shoppable carts. Item quantities always carry a matching
// stock hold; the reservation manager owns the hold lifecycle.
type Service interface {
	CreateCart(ctx context.Context, currency string) (*models.Cart, error)
	GetCart(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, cartID uuid.UUID, input AddItemInput) (*models.CartItem, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error
	AbandonExpired(ctx context.Context) (int, error)
}

// AddItemInput adds a variant to a cart.
type AddItemInput struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type service struct {
	repo         Repository
	reservations reservations.Service
	variants     variantLoader
	dbClient     *db.Client
	outbox       *outbox.Service
	cfg          config.ReservationConfig
	logg         *logger.Logger
}

// NewService wires the cart service.
func NewService(
	repo Repository,
	reservationSvc reservations.Service,
	variants variantLoader,
	dbClient *db.Client,
	outboxSvc *outbox.Service,
	cfg config.ReservationConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
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
		repo:         repo,
		reservations: reservationSvc,
		variants:     variants,
		dbClient:     dbClient,
		outbox:       outboxSvc,
		cfg:          cfg,
		logg:         logg,
	}, nil
}

func (s *service) CreateCart(ctx context.Context, currency string) (*models.Cart, error) {
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter code")
	}
	cart := &models.Cart{
		Status:    enums.CartStatusActive,
		Currency:  currency,
		ExpiresAt: time.Now().Add(s.cfg.CartTTL()),
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

func (s *service) GetCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.GetWithItems(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart, nil
}

func (s *service) AddItem(ctx context.Context, cartID uuid.UUID, input AddItemInput) (*models.CartItem, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	cart, err := s.shoppableCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	variant, err := s.variants.GetVariant(ctx, input.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}

	existing, err := s.repo.FindItemByVariant(ctx, cartID, input.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	target := input.Quantity
	if existing != nil {
		target += existing.Quantity
	}
	if err := validateQuantityBounds(variant, target); err != nil {
		return nil, err
	}

	ttl := s.cfg.TTL()
	if existing != nil {
		if _, err := s.reservations.Rereserve(ctx, cartID, input.VariantID, target, ttl); err != nil {
			return nil, err
		}
		if err := s.repo.UpdateItemQuantity(ctx, existing.ID, target); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		existing.Quantity = target
		return existing, nil
	}

	if _, err := s.reservations.Reserve(ctx, cartID, input.VariantID, target, ttl); err != nil {
		return nil, err
	}
	item := &models.CartItem{
		CartID:    cartID,
		ProductID: variant.ProductID,
		VariantID: input.VariantID,
		Quantity:  target,
		Currency:  &cart.Currency,
	}
	if err := s.repo.UpsertItem(ctx, item); err != nil {
		// hand the hold back so a failed insert does not strand stock
		_ = s.reservations.ReleaseByCartVariant(ctx, cartID, input.VariantID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cart item")
	}
	return item, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if _, err := s.shoppableCart(ctx, cartID); err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, cartID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	variant, err := s.variants.GetVariant(ctx, item.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if err := validateQuantityBounds(variant, quantity); err != nil {
		return nil, err
	}

	if _, err := s.reservations.Rereserve(ctx, cartID, item.VariantID, quantity, s.cfg.TTL()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	item.Quantity = quantity
	return item, nil
}

func (s *service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	if _, err := s.shoppableCart(ctx, cartID); err != nil {
		return err
	}
	item, err := s.repo.GetItem(ctx, cartID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err := s.reservations.ReleaseByCartVariant(ctx, cartID, item.VariantID); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
	}
	return nil
}

func (s *service) AbandonExpired(ctx context.Context) (int, error) {
	now := time.Now()
	carts, err := s.repo.ListExpiredActive(ctx, now, abandonBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired carts")
	}

	abandoned := 0
	for i := range carts {
		cartID := carts[i].ID
		err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			affected, err := repo.MarkAbandoned(ctx, cartID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "abandon cart")
			}
			if affected == 0 {
				return nil
			}
			if _, err := s.reservations.ReleaseForCart(ctx, tx, cartID, now); err != nil {
				return err
			}
			abandoned++
			if s.outbox != nil {
				return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventCartAbandoned,
					AggregateType: enums.AggregateCart,
					AggregateID:   cartID,
					Data:          payloads.CartAbandonedEvent{CartID: cartID, AbandonedAt: now},
				})
			}
			return nil
		})
		if err != nil {
			return abandoned, err
		}
	}
	if abandoned > 0 && s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "abandoned", abandoned), "expired carts closed")
	}
	return abandoned, nil
}

func (s *service) shoppableCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if cart.Status != enums.CartStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is no longer active")
	}
	if !cart.ExpiresAt.After(time.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart has expired")
	}
	return cart, nil
}

func validateQuantityBounds(variant *models.Variant, quantity int) error {
	min := variant.MinQuantity
	if min < 1 {
		min = 1
	}
	if quantity < min {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity below the minimum of %d", min))
	}
	if variant.MaxQuantity != nil && quantity > *variant.MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity above the maximum of %d", *variant.MaxQuantity))
	}
	return nil
}
