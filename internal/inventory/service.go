package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/outbox/payloads"
	"github.com/caldercommerce/storefront/pkg/pagination"
)

// Service owns the stock ledger: available counts, committed decrements, and
// manual adjustments.
type Service interface {
	CreateForVariant(ctx context.Context, variantID uuid.UUID, initialStock int) (*models.Inventory, error)
	GetByVariant(ctx context.Context, variantID uuid.UUID) (*models.Inventory, error)
	GetAvailable(ctx context.Context, variantID uuid.UUID) (int, error)
	List(ctx context.Context, params pagination.Params) (pagination.Page[models.Inventory], error)

	// Commit permanently decrements stock for one order line. Replays are
	// no-ops keyed on the (order, variant) commit ledger row.
	Commit(ctx context.Context, tx *gorm.DB, orderID, variantID uuid.UUID, qty int) error
	// Release returns a held quantity to the available pool.
	Release(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error

	Adjust(ctx context.Context, variantID uuid.UUID, input AdjustInput) (*models.Inventory, error)
}

// AdjustInput sets stock to an absolute value or shifts it by a delta.
// Exactly one field must be set.
type AdjustInput struct {
	StockQuantity *int   `json:"stock_quantity,omitempty"`
	Delta         *int   `json:"delta,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type service struct {
	repo     Repository
	dbClient *db.Client
	outbox   *outbox.Service
	logg     *logger.Logger
}

// NewService wires the stock ledger service.
func NewService(repo Repository, dbClient *db.Client, outboxSvc *outbox.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{repo: repo, dbClient: dbClient, outbox: outboxSvc, logg: logg}, nil
}

func (s *service) CreateForVariant(ctx context.Context, variantID uuid.UUID, initialStock int) (*models.Inventory, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if initialStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock cannot be negative")
	}
	inv := &models.Inventory{
		VariantID:     variantID,
		StockQuantity: initialStock,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "inventory already exists for variant")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory")
	}
	return inv, nil
}

func (s *service) GetByVariant(ctx context.Context, variantID uuid.UUID) (*models.Inventory, error) {
	inv, err := s.repo.GetByVariantID(ctx, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	if inv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found")
	}
	return inv, nil
}

func (s *service) GetAvailable(ctx context.Context, variantID uuid.UUID) (int, error) {
	inv, err := s.GetByVariant(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return inv.Available(), nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (pagination.Page[models.Inventory], error) {
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		return pagination.Page[models.Inventory]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventories")
	}
	return pagination.NewPage(rows, params, total), nil
}

func (s *service) Commit(ctx context.Context, tx *gorm.DB, orderID, variantID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock commit")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "commit quantity must be positive")
	}
	repo := s.repo.WithTx(tx)

	commit := &models.StockCommit{
		OrderID:   orderID,
		VariantID: variantID,
		Quantity:  qty,
	}
	if err := repo.InsertStockCommit(ctx, commit); err != nil {
		if db.IsUniqueViolation(err, "ux_stock_commits_order_variant") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock commit")
	}

	affected, err := repo.DecrementCommitted(ctx, variantID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "stock decrement lost to a concurrent update")
	}
	return nil
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock release")
	}
	repo := s.repo.WithTx(tx)
	affected, err := repo.ReleaseReserved(ctx, variantID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "stock release lost to a concurrent update")
	}
	return nil
}

func (s *service) Adjust(ctx context.Context, variantID uuid.UUID, input AdjustInput) (*models.Inventory, error) {
	if (input.StockQuantity == nil) == (input.Delta == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of stock_quantity or delta is required")
	}
	if input.StockQuantity != nil && *input.StockQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock_quantity cannot be negative")
	}

	var updated *models.Inventory
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		before, err := repo.GetByVariantID(ctx, variantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
		}
		if before == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found")
		}

		var affected int64
		if input.StockQuantity != nil {
			affected, err = repo.SetStock(ctx, variantID, *input.StockQuantity)
		} else {
			affected, err = repo.ApplyDelta(ctx, variantID, *input.Delta)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust inventory")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "adjustment would drop stock below the reserved quantity")
		}

		updated, err = repo.GetByVariantID(ctx, variantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload inventory")
		}

		if s.outbox != nil {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventInventoryAdjusted,
				AggregateType: enums.AggregateInventory,
				AggregateID:   updated.ID,
				Data: payloads.InventoryAdjustedEvent{
					VariantID: variantID,
					Previous:  before.StockQuantity,
					Current:   updated.StockQuantity,
					Reason:    input.Reason,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"variant_id": variantID.String(),
			"stock":      updated.StockQuantity,
		}), "inventory adjusted")
	}
	return updated, nil
}
