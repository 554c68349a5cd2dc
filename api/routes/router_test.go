package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caldercommerce/storefront/pkg/config"
	"github.com/caldercommerce/storefront/pkg/logger"
)

// Routes are registered even when their services are absent; the controllers
// answer 500 instead of chi falling through to 404.
func TestRouterRegistersRoutes(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	logg := logger.New(logger.Options{ServiceName: "router-test"})

	handler := NewRouter(cfg, logg, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodPost, "/api/v1/carts", http.StatusInternalServerError},
		{http.MethodGet, "/api/v1/products", http.StatusInternalServerError},
		{http.MethodGet, "/api/v1/orders", http.StatusInternalServerError},
		{http.MethodPost, "/api/v1/webhooks/stripe", http.StatusInternalServerError},
		{http.MethodDelete, "/api/v1/reservations/5f0f1a9e-6f3e-4a58-8f53-0cf24b4f5a10", http.StatusInternalServerError},
		{http.MethodGet, "/api/v1/nope", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, rec.Code, rec.Body.String())
		}
	}
}
