package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommerceMetrics tracks the hot paths of the storefront: payment webhooks
// and sweeper reclaim volume.
type CommerceMetrics struct {
	webhookEvents        *prometheus.CounterVec
	reservationsReleased prometheus.Counter
	cartsAbandoned       prometheus.Counter
}

// NewCommerceMetrics registers the storefront metrics on the provided registerer.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	reservationsReleased := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservations_released_total",
		Help: "Expired reservations released by the sweeper.",
	})
	cartsAbandoned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carts_abandoned_total",
		Help: "Carts closed by the TTL sweep.",
	})
	reg.MustRegister(webhookEvents, reservationsReleased, cartsAbandoned)
	return &CommerceMetrics{
		webhookEvents:        webhookEvents,
		reservationsReleased: reservationsReleased,
		cartsAbandoned:       cartsAbandoned,
	}
}

// IncWebhookEvent counts one webhook delivery with its outcome.
func (c *CommerceMetrics) IncWebhookEvent(eventType, outcome string) {
	if c == nil || c.webhookEvents == nil {
		return
	}
	c.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// AddReservationsReleased counts reservations reclaimed by a sweep pass.
func (c *CommerceMetrics) AddReservationsReleased(n int) {
	if c == nil || c.reservationsReleased == nil || n <= 0 {
		return
	}
	c.reservationsReleased.Add(float64(n))
}

// AddCartsAbandoned counts carts closed by a sweep pass.
func (c *CommerceMetrics) AddCartsAbandoned(n int) {
	if c == nil || c.cartsAbandoned == nil || n <= 0 {
		return
	}
	c.cartsAbandoned.Add(float64(n))
}
