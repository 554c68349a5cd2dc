package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCommerceMetricsNilSafe(t *testing.T) {
	var m *CommerceMetrics
	m.IncWebhookEvent("payment_intent.succeeded", "applied")
	m.AddReservationsReleased(3)
	m.AddCartsAbandoned(1)

	empty := NewCommerceMetrics(nil)
	empty.IncWebhookEvent("payment_intent.succeeded", "applied")
	empty.AddReservationsReleased(3)
}

func TestCommerceMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommerceMetrics(reg)

	m.IncWebhookEvent("payment_intent.succeeded", "applied")
	m.IncWebhookEvent("payment_intent.succeeded", "duplicate")
	m.AddReservationsReleased(2)
	m.AddCartsAbandoned(0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	if !found["payment_webhook_events_total"] {
		t.Fatal("missing webhook counter")
	}
	if !found["reservations_released_total"] {
		t.Fatal("missing reservations counter")
	}
	if !found["carts_abandoned_total"] {
		t.Fatal("missing carts counter")
	}
}
