package sweeper

import (
	"context"
	"fmt"

	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/metrics"
)

// reservationSweeper is the slice of the reservation service this job needs.
type reservationSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ReservationSweepJobParams configure the expired-hold sweep.
type ReservationSweepJobParams struct {
	Logger       *logger.Logger
	Reservations reservationSweeper
	Metrics      *metrics.CommerceMetrics
}

// NewReservationSweepJob builds the job that releases expired stock holds.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	return &reservationSweepJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		metrics:      params.Metrics,
	}, nil
}

type reservationSweepJob struct {
	logg         *logger.Logger
	reservations reservationSweeper
	metrics      *metrics.CommerceMetrics
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	released, err := j.reservations.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired reservations: %w", err)
	}
	j.metrics.AddReservationsReleased(released)
	if released > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", released), "expired reservations released")
	}
	return nil
}
