package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/pkg/db/dbtest"
	"github.com/caldercommerce/storefront/pkg/enums"
	"github.com/caldercommerce/storefront/pkg/outbox/payloads"
)

func TestEmitStoresEnvelope(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCreatedEvent{OrderID: orderID, ItemCount: 2},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows, err := repo.ListByAggregate(enums.AggregateOrder, orderID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rows))
	}
	if rows[0].EventType != enums.EventOrderCreated {
		t.Fatalf("unexpected event type %s", rows[0].EventType)
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Version != 1 {
		t.Fatalf("expected version 1, got %d", envelope.Version)
	}
	if envelope.EventID == "" {
		t.Fatal("expected event id")
	}

	var data payloads.OrderCreatedEvent
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.OrderID != orderID || data.ItemCount != 2 {
		t.Fatalf("unexpected payload %+v", data)
	}
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	emit := func() error {
		return db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, DomainEvent{
				EventType:     enums.EventOrderPaid,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Data:          payloads.OrderPaidEvent{OrderID: orderID},
			})
		})
	}
	if err := emit(); err != nil {
		t.Fatalf("first emit: %v", err)
	}
	if err := emit(); err != nil {
		t.Fatalf("second emit: %v", err)
	}

	rows, err := repo.ListByAggregate(enums.AggregateOrder, orderID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected deduped single event, got %d", len(rows))
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{}); err == nil {
		t.Fatal("expected error without transaction")
	}
}
