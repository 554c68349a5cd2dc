package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/pagination"
)

// Repository manages persistence for inventory rows and the stock commit ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, inv *models.Inventory) error
	GetByVariantID(ctx context.Context, variantID uuid.UUID) (*models.Inventory, error)
	List(ctx context.Context, params pagination.Params) ([]models.Inventory, int64, error)

	// Guarded single-statement updates. Each reports rows affected so the
	// service can tell a contended row from a missing one.
	ReserveStock(ctx context.Context, variantID uuid.UUID, qty int) (int64, error)
	DecrementCommitted(ctx context.Context, variantID uuid.UUID, qty int) (int64, error)
	ReleaseReserved(ctx context.Context, variantID uuid.UUID, qty int) (int64, error)
	SetStock(ctx context.Context, variantID uuid.UUID, stock int) (int64, error)
	ApplyDelta(ctx context.Context, variantID uuid.UUID, delta int) (int64, error)

	InsertStockCommit(ctx context.Context, commit *models.StockCommit) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, inv *models.Inventory) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *repository) GetByVariantID(ctx context.Context, variantID uuid.UUID) (*models.Inventory, error) {
	var inv models.Inventory
	err := r.db.WithContext(ctx).Where("variant_id = ?", variantID).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params) ([]models.Inventory, int64, error) {
	params = params.Normalize()
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Inventory{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Inventory
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error
	return rows, total, err
}

func (r *repository) ReserveStock(ctx context.Context, variantID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventories
		SET reserved_quantity = reserved_quantity + ?,
			updated_at = ?
		WHERE variant_id = ? AND stock_quantity - reserved_quantity >= ?
	`, qty, time.Now(), variantID, qty)
	return res.RowsAffected, res.Error
}

func (r *repository) DecrementCommitted(ctx context.Context, variantID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventories
		SET stock_quantity = stock_quantity - ?,
			reserved_quantity = reserved_quantity - ?,
			updated_at = ?
		WHERE variant_id = ? AND stock_quantity >= ? AND reserved_quantity >= ?
	`, qty, qty, time.Now(), variantID, qty, qty)
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseReserved(ctx context.Context, variantID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventories
		SET reserved_quantity = reserved_quantity - ?,
			updated_at = ?
		WHERE variant_id = ? AND reserved_quantity >= ?
	`, qty, time.Now(), variantID, qty)
	return res.RowsAffected, res.Error
}

func (r *repository) SetStock(ctx context.Context, variantID uuid.UUID, stock int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventories
		SET stock_quantity = ?,
			updated_at = ?
		WHERE variant_id = ? AND reserved_quantity <= ?
	`, stock, time.Now(), variantID, stock)
	return res.RowsAffected, res.Error
}

func (r *repository) ApplyDelta(ctx context.Context, variantID uuid.UUID, delta int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventories
		SET stock_quantity = stock_quantity + ?,
			updated_at = ?
		WHERE variant_id = ? AND stock_quantity + ? >= reserved_quantity AND stock_quantity + ? >= 0
	`, delta, time.Now(), variantID, delta, delta)
	return res.RowsAffected, res.Error
}

func (r *repository) InsertStockCommit(ctx context.Context, commit *models.StockCommit) error {
	if commit.ID == uuid.Nil {
		commit.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(commit).Error
}
