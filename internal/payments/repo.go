package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
)

// Repository persists payment attempts and the processed-event ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertPayment(ctx context.Context, payment *models.Payment) error
	InsertEvent(ctx context.Context, event *models.PaymentEvent) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)

	// UpdateStatusByIntent stamps every attempt row sharing the intent id.
	UpdateStatusByIntent(ctx context.Context, intentID string, status enums.PaymentStatus, chargeID *string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) InsertEvent(ctx context.Context, event *models.PaymentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateStatusByIntent(ctx context.Context, intentID string, status enums.PaymentStatus, chargeID *string) (int64, error) {
	fields := map[string]any{"status": status}
	if chargeID != nil {
		fields["stripe_charge_id"] = *chargeID
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("stripe_payment_intent_id = ?", intentID).
		Updates(fields)
	return result.RowsAffected, result.Error
}
