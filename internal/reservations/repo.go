package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
)

// Repository manages persistence for reservation rows. Status changes are
// per-row compare-and-set updates so concurrent sweeps and releases cannot
// double-return stock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindActiveByCartVariant(ctx context.Context, cartID, variantID uuid.UUID, now time.Time) (*models.Reservation, error)
	ListActiveByCart(ctx context.Context, cartID uuid.UUID, now time.Time) ([]models.Reservation, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	ListExpiredActiveByVariant(ctx context.Context, variantID uuid.UUID, now time.Time) ([]models.Reservation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.Reservation, error)

	MarkExpired(ctx context.Context, id uuid.UUID) (int64, error)
	MarkReleased(ctx context.Context, id uuid.UUID) (int64, error)
	MarkCommitted(ctx context.Context, id, orderID uuid.UUID, now time.Time) (int64, error)
	MarkFulfilled(ctx context.Context, id uuid.UUID) (int64, error)
	ReleaseCommitted(ctx context.Context, id uuid.UUID) (int64, error)
	ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt, now time.Time) (int64, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int, expiresAt, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == uuid.Nil {
		reservation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindActiveByCartVariant(ctx context.Context, cartID, variantID uuid.UUID, now time.Time) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND variant_id = ? AND status = ? AND expires_at > ?",
			cartID, variantID, enums.ReservationStatusActive, now).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListActiveByCart(ctx context.Context, cartID uuid.UUID, now time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND status = ? AND expires_at > ?", cartID, enums.ReservationStatusActive, now).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var rows []models.Reservation
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *repository) ListExpiredActiveByVariant(ctx context.Context, variantID uuid.UUID, now time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND status = ? AND expires_at <= ?", variantID, enums.ReservationStatusActive, now).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusActive).
		Updates(map[string]any{"status": enums.ReservationStatusExpired, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkReleased(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusActive).
		Updates(map[string]any{"status": enums.ReservationStatusReleased, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkCommitted(ctx context.Context, id, orderID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, enums.ReservationStatusActive, now).
		Updates(map[string]any{
			"status":     enums.ReservationStatusCommitted,
			"order_id":   orderID,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkFulfilled(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusCommitted).
		Updates(map[string]any{"status": enums.ReservationStatusFulfilled, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseCommitted(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusCommitted).
		Updates(map[string]any{"status": enums.ReservationStatusReleased, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *repository) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, enums.ReservationStatusActive, now).
		Updates(map[string]any{"expires_at": expiresAt, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int, expiresAt, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, enums.ReservationStatusActive, now).
		Updates(map[string]any{
			"quantity":   quantity,
			"expires_at": expiresAt,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
