package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caldercommerce/storefront/api/controllers"
	webhookcontrollers "github.com/caldercommerce/storefront/api/controllers/webhooks"
	"github.com/caldercommerce/storefront/api/middleware"
	"github.com/caldercommerce/storefront/internal/cart"
	"github.com/caldercommerce/storefront/internal/catalog"
	checkoutsvc "github.com/caldercommerce/storefront/internal/checkout"
	"github.com/caldercommerce/storefront/internal/inventory"
	"github.com/caldercommerce/storefront/internal/orders"
	"github.com/caldercommerce/storefront/internal/payments"
	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/config"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/metrics"
	"github.com/caldercommerce/storefront/pkg/outbox/idempotency"
	"github.com/caldercommerce/storefront/pkg/redis"
	"github.com/caldercommerce/storefront/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	catalogService catalog.Service,
	inventoryService inventory.Service,
	cartService cart.Service,
	reservationService reservations.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	stripeClient *stripe.Client,
	webhookGuard *idempotency.Manager,
	commerceMetrics *metrics.CommerceMetrics,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(paymentsService, stripeClient, webhookGuard, commerceMetrics, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", controllers.CreateProduct(catalogService, logg))
		r.Get("/", controllers.ListProducts(catalogService, logg))
		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", controllers.GetProduct(catalogService, logg))
			r.Patch("/", controllers.UpdateProduct(catalogService, logg))
			r.Delete("/", controllers.DeleteProduct(catalogService, logg))
			r.Post("/variants", controllers.AddVariant(catalogService, logg))
			r.Get("/variants", controllers.ListVariants(catalogService, logg))
			r.Post("/images", controllers.AddImage(catalogService, logg))
		})
	})

	r.Route("/api/v1/variants/{variantID}", func(r chi.Router) {
		r.Get("/", controllers.GetVariant(catalogService, logg))
		r.Patch("/", controllers.UpdateVariant(catalogService, logg))
		r.Delete("/", controllers.DeleteVariant(catalogService, logg))
	})

	r.Delete("/api/v1/images/{imageID}", controllers.DeleteImage(catalogService, logg))

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Post("/", controllers.CreateInventory(inventoryService, logg))
		r.Get("/", controllers.ListInventory(inventoryService, logg))
		r.Get("/{variantID}", controllers.GetInventory(inventoryService, logg))
		r.Patch("/{variantID}", controllers.AdjustInventory(inventoryService, logg))
	})

	r.Route("/api/v1/carts", func(r chi.Router) {
		r.Post("/", controllers.CreateCart(cartService, logg))
		r.Route("/{cartID}", func(r chi.Router) {
			r.Get("/", controllers.GetCart(cartService, logg))
			r.Post("/items", controllers.AddCartItem(cartService, logg))
			r.Patch("/items/{itemID}", controllers.UpdateCartItem(cartService, logg))
			r.Delete("/items/{itemID}", controllers.RemoveCartItem(cartService, logg))
			r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		})
	})

	r.Route("/api/v1/reservations/{reservationID}", func(r chi.Router) {
		r.Post("/extend", controllers.ExtendReservation(reservationService, cfg.Reservation.TTL(), logg))
		r.Delete("/", controllers.ReleaseReservation(reservationService, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", controllers.ListOrders(ordersService, logg))
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", controllers.GetOrder(ordersService, logg))
			r.Patch("/", controllers.UpdateOrder(ordersService, logg))
			r.Post("/cancel", controllers.CancelOrder(ordersService, logg))
			r.Post("/payment-intent", controllers.CreatePaymentIntent(paymentsService, logg))
			r.Get("/payments", controllers.ListOrderPayments(paymentsService, logg))
		})
	})

	return r
}
