package sweeper

import (
	"context"
	"errors"
	"testing"

	"github.com/caldercommerce/storefront/pkg/logger"
)

type fakeSweeper struct {
	released int
	err      error
	calls    int
}

func (f *fakeSweeper) SweepExpired(context.Context) (int, error) {
	f.calls++
	return f.released, f.err
}

type fakeAbandoner struct {
	abandoned int
	err       error
	calls     int
}

func (f *fakeAbandoner) AbandonExpired(context.Context) (int, error) {
	f.calls++
	return f.abandoned, f.err
}

func TestReservationSweepJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "sweeper-test"})
	sweeper := &fakeSweeper{released: 3}
	job, err := NewReservationSweepJob(ReservationSweepJobParams{
		Logger:       logg,
		Reservations: sweeper,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "reservation-sweep" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", sweeper.calls)
	}

	sweeper.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when sweep fails")
	}
}

func TestCartTTLJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "sweeper-test"})
	abandoner := &fakeAbandoner{abandoned: 2}
	job, err := NewCartTTLJob(CartTTLJobParams{
		Logger: logg,
		Carts:  abandoner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "cart-ttl" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if abandoner.calls != 1 {
		t.Fatalf("expected one abandon call, got %d", abandoner.calls)
	}

	abandoner.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when abandon fails")
	}
}

func TestRedisLockRequiresClientAndKey(t *testing.T) {
	if _, err := NewRedisLock(nil, "sf:lock:reservation-sweep", 0); err == nil {
		t.Fatal("expected error without client")
	}
}
