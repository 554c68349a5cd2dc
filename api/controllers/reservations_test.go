package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/db/models"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
)

type fakeReservationService struct {
	reservations.Service

	extendID  uuid.UUID
	extendTTL time.Duration
	extendErr error

	releaseID  uuid.UUID
	releaseErr error
}

func (f *fakeReservationService) Extend(_ context.Context, id uuid.UUID, ttl time.Duration) (*models.Reservation, error) {
	f.extendID = id
	f.extendTTL = ttl
	if f.extendErr != nil {
		return nil, f.extendErr
	}
	return &models.Reservation{ID: id, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *fakeReservationService) Release(_ context.Context, id uuid.UUID) error {
	f.releaseID = id
	return f.releaseErr
}

func reservationRouter(svc reservations.Service, holdTTL time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/reservations/{reservationID}/extend", ExtendReservation(svc, holdTTL, nil))
	r.Delete("/api/v1/reservations/{reservationID}", ReleaseReservation(svc, nil))
	return r
}

func TestExtendReservation(t *testing.T) {
	svc := &fakeReservationService{}
	router := reservationRouter(svc, 15*time.Minute)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations/"+id.String()+"/extend", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.extendID != id {
		t.Fatalf("service saw wrong id %s", svc.extendID)
	}
	if svc.extendTTL != 15*time.Minute {
		t.Fatalf("expected configured ttl, got %s", svc.extendTTL)
	}
}

func TestExtendReservationMissingHold(t *testing.T) {
	svc := &fakeReservationService{
		extendErr: pkgerrors.New(pkgerrors.CodeReservationMissing, "reservation is not active"),
	}
	router := reservationRouter(svc, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations/"+uuid.NewString()+"/extend", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestReleaseReservation(t *testing.T) {
	svc := &fakeReservationService{}
	router := reservationRouter(svc, time.Minute)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reservations/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.releaseID != id {
		t.Fatalf("service saw wrong id %s", svc.releaseID)
	}

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data["status"] != "released" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestReleaseReservationBadID(t *testing.T) {
	svc := &fakeReservationService{}
	router := reservationRouter(svc, time.Minute)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reservations/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.releaseID != uuid.Nil {
		t.Fatalf("service should not run on invalid id")
	}
}
