package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caldercommerce/storefront/internal/cart"
	"github.com/caldercommerce/storefront/internal/catalog"
	"github.com/caldercommerce/storefront/internal/inventory"
	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/internal/sweeper"
	"github.com/caldercommerce/storefront/pkg/config"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/metrics"
	"github.com/caldercommerce/storefront/pkg/migrate"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/redis"
)

const lockKeyFormat = "sf:sweeper:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweeper"

	logg = logger.New(logger.Options{
		ServiceName: "sweeper",
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

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	inventoryRepo := inventory.NewRepository(dbClient.DB())

	reservationSvc, err := reservations.NewService(reservations.NewRepository(dbClient.DB()), inventoryRepo, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	catalogSvc, err := catalog.NewService(catalog.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartSvc, err := cart.NewService(cart.NewRepository(dbClient.DB()), reservationSvc, catalogSvc, dbClient, outboxSvc, cfg.Reservation, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	commerceMetrics := metrics.NewCommerceMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	sweepJob, err := sweeper.NewReservationSweepJob(sweeper.ReservationSweepJobParams{
		Logger:       logg,
		Reservations: reservationSvc,
		Metrics:      commerceMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation sweep job", err)
		os.Exit(1)
	}

	cartJob, err := sweeper.NewCartTTLJob(sweeper.CartTTLJobParams{
		Logger:  logg,
		Carts:   cartSvc,
		Metrics: commerceMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart ttl job", err)
		os.Exit(1)
	}

	lock, err := sweeper.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Sweep.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := sweeper.NewService(sweeper.ServiceParams{
		Logger:   logg,
		Registry: sweeper.NewRegistry(sweepJob, cartJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweeper")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweeper shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
