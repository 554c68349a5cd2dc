package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/inventory"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/outbox/payloads"
)

// sweepBatchSize caps how many rows a single sweep pass reclaims.
const sweepBatchSize = 500

// Service manages time-boxed stock holds. Every mutation holds the invariant
// that inventories.reserved_quantity equals the sum of active and committed
// reservation quantities for the variant.
type Service interface {
	Reserve(ctx context.Context, cartID, variantID uuid.UUID, qty int, ttl time.Duration) (*models.Reservation, error)
	Extend(ctx context.Context, reservationID uuid.UUID, ttl time.Duration) (*models.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
	ReleaseByCartVariant(ctx context.Context, cartID, variantID uuid.UUID) error
	Rereserve(ctx context.Context, cartID, variantID uuid.UUID, newQty int, ttl time.Duration) (*models.Reservation, error)
	SweepExpired(ctx context.Context) (int, error)

	// CommitToOrder binds every active hold of the cart to the order inside
	// the caller's checkout transaction.
	CommitToOrder(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID, now time.Time) ([]models.Reservation, error)
	// FulfillForOrder retires the order's committed holds once its stock has
	// been permanently decremented. It never touches inventory counters.
	FulfillForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error)
	// ReleaseForOrder returns committed holds to the available pool when an
	// order fails or is cancelled.
	ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error)
	// ReleaseForCart drops the cart's remaining active holds, e.g. when the
	// cart itself is abandoned.
	ReleaseForCart(ctx context.Context, tx *gorm.DB, cartID uuid.UUID, now time.Time) (int, error)
}

type service struct {
	repo     Repository
	invRepo  inventory.Repository
	dbClient *db.Client
	outbox   *outbox.Service
	logg     *logger.Logger
}

// NewService wires the reservation manager.
func NewService(repo Repository, invRepo inventory.Repository, dbClient *db.Client, outboxSvc *outbox.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if invRepo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{repo: repo, invRepo: invRepo, dbClient: dbClient, outbox: outboxSvc, logg: logg}, nil
}

func (s *service) Reserve(ctx context.Context, cartID, variantID uuid.UUID, qty int, ttl time.Duration) (*models.Reservation, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	if ttl <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation ttl must be positive")
	}

	now := time.Now()
	var reservation *models.Reservation
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invRepo := s.invRepo.WithTx(tx)

		if err := s.expireStaleForVariant(ctx, tx, variantID, now); err != nil {
			return err
		}

		affected, err := invRepo.ReserveStock(ctx, variantID, qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if affected == 0 {
			inv, err := invRepo.GetByVariantID(ctx, variantID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
			}
			if inv == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found")
			}
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for reservation").
				WithDetails(map[string]any{"available": inv.Available(), "requested": qty})
		}

		reservation = &models.Reservation{
			CartID:    cartID,
			VariantID: variantID,
			Quantity:  qty,
			Status:    enums.ReservationStatusActive,
			ExpiresAt: now.Add(ttl),
		}
		return repo.Insert(ctx, reservation)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) Extend(ctx context.Context, reservationID uuid.UUID, ttl time.Duration) (*models.Reservation, error) {
	if ttl <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation ttl must be positive")
	}
	now := time.Now()
	affected, err := s.repo.ExtendExpiry(ctx, reservationID, now.Add(ttl), now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend reservation")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeReservationMissing, "reservation is not active")
	}
	row, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload reservation")
	}
	return row, nil
}

func (s *service) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.GetByID(ctx, reservationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
		}
		if row == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return s.releaseRow(ctx, tx, row)
	})
}

func (s *service) ReleaseByCartVariant(ctx context.Context, cartID, variantID uuid.UUID) error {
	now := time.Now()
	return s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindActiveByCartVariant(ctx, cartID, variantID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
		}
		if row == nil {
			return nil
		}
		return s.releaseRow(ctx, tx, row)
	})
}

// releaseRow moves one active hold to released and returns its quantity to
// the pool. Releasing a hold that is no longer active is a no-op.
func (s *service) releaseRow(ctx context.Context, tx *gorm.DB, row *models.Reservation) error {
	repo := s.repo.WithTx(tx)
	invRepo := s.invRepo.WithTx(tx)

	affected, err := repo.MarkReleased(ctx, row.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
	}
	if affected == 0 {
		return nil
	}
	affected, err = invRepo.ReleaseReserved(ctx, row.VariantID, row.Quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return reserved stock")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "reserved quantity out of sync with holds")
	}
	return nil
}

func (s *service) Rereserve(ctx context.Context, cartID, variantID uuid.UUID, newQty int, ttl time.Duration) (*models.Reservation, error) {
	if newQty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	if ttl <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation ttl must be positive")
	}

	now := time.Now()
	var reservation *models.Reservation
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invRepo := s.invRepo.WithTx(tx)

		if err := s.expireStaleForVariant(ctx, tx, variantID, now); err != nil {
			return err
		}

		row, err := repo.FindActiveByCartVariant(ctx, cartID, variantID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
		}
		if row == nil {
			return pkgerrors.New(pkgerrors.CodeReservationMissing, "no active reservation for cart item")
		}

		delta := newQty - row.Quantity
		switch {
		case delta > 0:
			affected, err := invRepo.ReserveStock(ctx, variantID, delta)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve additional stock")
			}
			if affected == 0 {
				inv, err := invRepo.GetByVariantID(ctx, variantID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
				}
				available := 0
				if inv != nil {
					available = inv.Available()
				}
				return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for new quantity").
					WithDetails(map[string]any{"available": available, "requested_delta": delta})
			}
		case delta < 0:
			affected, err := invRepo.ReleaseReserved(ctx, variantID, -delta)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return reserved stock")
			}
			if affected == 0 {
				return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "reserved quantity out of sync with holds")
			}
		}

		affected, err := repo.UpdateQuantity(ctx, row.ID, newQty, now.Add(ttl), now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reservation")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "reservation changed concurrently")
		}

		reservation, err = repo.GetByID(ctx, row.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload reservation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()
	released := 0
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListExpiredActive(ctx, now, sweepBatchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired reservations")
		}
		for i := range rows {
			n, err := s.expireRow(ctx, tx, &rows[i], now)
			if err != nil {
				return err
			}
			released += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 && s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "released", released), "expired reservations swept")
	}
	return released, nil
}

func (s *service) expireStaleForVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, now time.Time) error {
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListExpiredActiveByVariant(ctx, variantID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale reservations")
	}
	for i := range rows {
		if _, err := s.expireRow(ctx, tx, &rows[i], now); err != nil {
			return err
		}
	}
	return nil
}

// expireRow CAS-expires one hold and returns how many rows it reclaimed
// (0 when another writer got there first).
func (s *service) expireRow(ctx context.Context, tx *gorm.DB, row *models.Reservation, now time.Time) (int, error) {
	repo := s.repo.WithTx(tx)
	invRepo := s.invRepo.WithTx(tx)

	affected, err := repo.MarkExpired(ctx, row.ID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire reservation")
	}
	if affected == 0 {
		return 0, nil
	}
	affected, err = invRepo.ReleaseReserved(ctx, row.VariantID, row.Quantity)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return expired stock")
	}
	if affected == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "reserved quantity out of sync with holds")
	}
	if s.outbox != nil {
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationExpired,
			AggregateType: enums.AggregateReservation,
			AggregateID:   row.ID,
			Data: payloads.ReservationExpiredEvent{
				ReservationID: row.ID,
				CartID:        row.CartID,
				VariantID:     row.VariantID,
				Quantity:      row.Quantity,
				ExpiredAt:     now,
			},
		})
		if err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func (s *service) CommitToOrder(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID, now time.Time) ([]models.Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to commit reservations")
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListActiveByCart(ctx, cartID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart reservations")
	}
	for i := range rows {
		affected, err := repo.MarkCommitted(ctx, rows[i].ID, orderID, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit reservation")
		}
		if affected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "reservation changed during checkout")
		}
		rows[i].Status = enums.ReservationStatusCommitted
		rows[i].OrderID = &orderID
	}
	return rows, nil
}

func (s *service) ReleaseForCart(ctx context.Context, tx *gorm.DB, cartID uuid.UUID, now time.Time) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to release cart holds")
	}
	rows, err := s.repo.WithTx(tx).ListActiveByCart(ctx, cartID, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart reservations")
	}
	released := 0
	for i := range rows {
		if err := s.releaseRow(ctx, tx, &rows[i]); err != nil {
			return 0, err
		}
		released++
	}
	return released, nil
}

func (s *service) FulfillForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to fulfill order holds")
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListByOrder(ctx, orderID, enums.ReservationStatusCommitted)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order reservations")
	}
	fulfilled := 0
	for i := range rows {
		affected, err := repo.MarkFulfilled(ctx, rows[i].ID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill order reservation")
		}
		if affected == 0 {
			continue
		}
		fulfilled++
	}
	return fulfilled, nil
}

func (s *service) ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to release order holds")
	}
	repo := s.repo.WithTx(tx)
	invRepo := s.invRepo.WithTx(tx)

	rows, err := repo.ListByOrder(ctx, orderID, enums.ReservationStatusCommitted)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order reservations")
	}
	released := 0
	for i := range rows {
		affected, err := repo.ReleaseCommitted(ctx, rows[i].ID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release order reservation")
		}
		if affected == 0 {
			continue
		}
		affected, err = invRepo.ReleaseReserved(ctx, rows[i].VariantID, rows[i].Quantity)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return order stock")
		}
		if affected == 0 {
			return 0, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "reserved quantity out of sync with holds")
		}
		released++
	}
	return released, nil
}
