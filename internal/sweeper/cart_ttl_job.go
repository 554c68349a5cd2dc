package sweeper

import (
	"context"
	"fmt"

	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/metrics"
)

// cartAbandoner is the slice of the cart service this job needs.
type cartAbandoner interface {
	AbandonExpired(ctx context.Context) (int, error)
}

// CartTTLJobParams configure the stale-cart sweep.
type CartTTLJobParams struct {
	Logger  *logger.Logger
	Carts   cartAbandoner
	Metrics *metrics.CommerceMetrics
}

// NewCartTTLJob builds the job that abandons expired carts and frees their
// holds.
func NewCartTTLJob(params CartTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartTTLJob{
		logg:    params.Logger,
		carts:   params.Carts,
		metrics: params.Metrics,
	}, nil
}

type cartTTLJob struct {
	logg    *logger.Logger
	carts   cartAbandoner
	metrics *metrics.CommerceMetrics
}

func (j *cartTTLJob) Name() string { return "cart-ttl" }

func (j *cartTTLJob) Run(ctx context.Context) error {
	abandoned, err := j.carts.AbandonExpired(ctx)
	if err != nil {
		return fmt.Errorf("abandon expired carts: %w", err)
	}
	j.metrics.AddCartsAbandoned(abandoned)
	if abandoned > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", abandoned), "expired carts abandoned")
	}
	return nil
}
