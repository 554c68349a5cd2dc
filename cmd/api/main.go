package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/caldercommerce/storefront/api/routes"
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
	"github.com/caldercommerce/storefront/pkg/migrate"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/outbox/idempotency"
	"github.com/caldercommerce/storefront/pkg/redis"
	"github.com/caldercommerce/storefront/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewManager(redisClient, cfg.Sweep.WebhookReplays)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	commerceMetrics := metrics.NewCommerceMetrics(promRegistry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	inventoryRepo := inventory.NewRepository(dbClient.DB())
	reservationRepo := reservations.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())
	paymentRepo := payments.NewRepository(dbClient.DB())

	catalogSvc, err := catalog.NewService(catalogRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	inventorySvc, err := inventory.NewService(inventoryRepo, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	reservationSvc, err := reservations.NewService(reservationRepo, inventoryRepo, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	cartSvc, err := cart.NewService(cartRepo, reservationSvc, catalogSvc, dbClient, outboxSvc, cfg.Reservation, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkoutsvc.NewService(cartRepo, orderRepo, reservationSvc, catalogSvc, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderSvc, err := orders.NewService(orderRepo, inventorySvc, reservationSvc, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentSvc, err := payments.NewService(paymentRepo, orderSvc, orderRepo, stripeClient, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			catalogSvc,
			inventorySvc,
			cartSvc,
			reservationSvc,
			checkoutSvc,
			orderSvc,
			paymentSvc,
			stripeClient,
			webhookGuard,
			commerceMetrics,
			promRegistry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
