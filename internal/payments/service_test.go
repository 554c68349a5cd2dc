package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/inventory"
	"github.com/caldercommerce/storefront/internal/orders"
	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/dbtest"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/outbox"
)

type fakeIntents struct {
	nextID  string
	err     error
	amounts []int64
}

func (f *fakeIntents) CreatePaymentIntent(_ context.Context, _ string, amount int64, _ string) (*stripesdk.PaymentIntent, error) {
	f.amounts = append(f.amounts, amount)
	if f.err != nil {
		return nil, f.err
	}
	return &stripesdk.PaymentIntent{ID: f.nextID}, nil
}

type fixture struct {
	svc     Service
	conn    *gorm.DB
	intents *fakeIntents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)
	oboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)

	invSvc, err := inventory.NewService(inventory.NewRepository(conn), client, oboxSvc, nil)
	require.NoError(t, err)
	resSvc, err := reservations.NewService(
		reservations.NewRepository(conn),
		inventory.NewRepository(conn),
		client,
		oboxSvc,
		nil,
	)
	require.NoError(t, err)
	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(ordersRepo, invSvc, resSvc, client, oboxSvc, nil)
	require.NoError(t, err)

	intents := &fakeIntents{nextID: "pi_test_1"}
	svc, err := NewService(NewRepository(conn), ordersSvc, ordersRepo, intents, client, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, intents: intents}
}

// seedOrder builds a pending order with one committed stock hold, the state
// checkout leaves behind.
func (f *fixture) seedOrder(t *testing.T, qty int, total int64) (uuid.UUID, uuid.UUID) {
	t.Helper()
	orderID := uuid.New()
	variantID := uuid.New()
	require.NoError(t, f.conn.Create(&models.Inventory{
		ID:               uuid.New(),
		VariantID:        variantID,
		StockQuantity:    qty * 3,
		ReservedQuantity: qty,
	}).Error)
	require.NoError(t, f.conn.Create(&models.Order{
		ID:       orderID,
		CartID:   uuid.New(),
		Status:   enums.OrderStatusPending,
		Total:    decimal.NewFromInt(total),
		Currency: "USD",
	}).Error)
	require.NoError(t, f.conn.Create(&models.OrderItem{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: uuid.New(),
		VariantID: variantID,
		Quantity:  qty,
		UnitPrice: decimal.NewFromInt(total / int64(qty)),
		Currency:  "USD",
	}).Error)
	require.NoError(t, f.conn.Create(&models.Reservation{
		ID:        uuid.New(),
		CartID:    uuid.New(),
		VariantID: variantID,
		OrderID:   &orderID,
		Quantity:  qty,
		Status:    enums.ReservationStatusCommitted,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}).Error)
	return orderID, variantID
}

func (f *fixture) orderByID(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", id).First(&order).Error)
	return order
}

func (f *fixture) inventoryFor(t *testing.T, variantID uuid.UUID) models.Inventory {
	t.Helper()
	var inv models.Inventory
	require.NoError(t, f.conn.Where("variant_id = ?", variantID).First(&inv).Error)
	return inv
}

func (f *fixture) eventCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.PaymentEvent{}).Count(&count).Error)
	return count
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, _ := f.seedOrder(t, 2, 50)

	payment, err := f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, "pi_test_1", payment.StripePaymentIntentID)
	require.Equal(t, enums.PaymentStatusInitiated, payment.Status)
	require.Equal(t, []int64{5000}, f.intents.amounts)

	order := f.orderByID(t, orderID)
	require.NotNil(t, order.StripePaymentIntentID)
	require.Equal(t, "pi_test_1", *order.StripePaymentIntentID)
}

func TestCreateIntentRetryAppendsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, _ := f.seedOrder(t, 1, 20)

	_, err := f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)

	f.intents.nextID = "pi_test_2"
	_, err = f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)

	rows, err := f.svc.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	order := f.orderByID(t, orderID)
	require.Equal(t, "pi_test_2", *order.StripePaymentIntentID)
}

func TestCreateIntentRejectsNonPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, _ := f.seedOrder(t, 1, 20)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", orderID).
		Update("status", enums.OrderStatusCancelled).Error)

	_, err := f.svc.CreateIntent(ctx, orderID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCreateIntentProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, _ := f.seedOrder(t, 1, 20)
	f.intents.err = errors.New("stripe unavailable")

	_, err := f.svc.CreateIntent(ctx, orderID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	rows, err := f.svc.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestHandleEventSucceededMarksOrderPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, variantID := f.seedOrder(t, 2, 50)
	_, err := f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)

	chargeID := "ch_1"
	outcome, err := f.svc.HandleEvent(ctx, ProviderEvent{
		EventID:         "evt_1",
		PaymentIntentID: "pi_test_1",
		Status:          enums.PaymentStatusSucceeded,
		ChargeID:        &chargeID,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	order := f.orderByID(t, orderID)
	require.Equal(t, enums.OrderStatusPaid, order.Status)

	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 4, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)

	// the hold must be retired so it no longer counts against reserved stock
	var res models.Reservation
	require.NoError(t, f.conn.Where("order_id = ?", orderID).First(&res).Error)
	require.Equal(t, enums.ReservationStatusFulfilled, res.Status)

	rows, err := f.svc.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.PaymentStatusSucceeded, rows[0].Status)
	require.NotNil(t, rows[0].StripeChargeID)
	require.Equal(t, "ch_1", *rows[0].StripeChargeID)
}

func TestHandleEventReplayIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, variantID := f.seedOrder(t, 2, 50)
	_, err := f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)

	event := ProviderEvent{
		EventID:         "evt_1",
		PaymentIntentID: "pi_test_1",
		Status:          enums.PaymentStatusSucceeded,
	}
	outcome, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	outcome, err = f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplayed, outcome)

	// stock decremented exactly once
	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 4, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)
	require.EqualValues(t, 1, f.eventCount(t))
}

func TestHandleEventFailedReleasesHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, variantID := f.seedOrder(t, 2, 50)
	_, err := f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)

	outcome, err := f.svc.HandleEvent(ctx, ProviderEvent{
		EventID:         "evt_1",
		PaymentIntentID: "pi_test_1",
		Status:          enums.PaymentStatusFailed,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	order := f.orderByID(t, orderID)
	require.Equal(t, enums.OrderStatusFailed, order.Status)

	// the hold is released back to open stock
	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 6, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)
}

func TestHandleEventUnknownOrderKeepsMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.HandleEvent(ctx, ProviderEvent{
		EventID:         "evt_orphan",
		PaymentIntentID: "pi_missing",
		Status:          enums.PaymentStatusSucceeded,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownOrder))
	require.Equal(t, OutcomeUnknownOrder, outcome)
	require.EqualValues(t, 1, f.eventCount(t))

	outcome, err = f.svc.HandleEvent(ctx, ProviderEvent{
		EventID:         "evt_orphan",
		PaymentIntentID: "pi_missing",
		Status:          enums.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeReplayed, outcome)
}

func TestHandleEventLateSuccessOnCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, variantID := f.seedOrder(t, 2, 50)
	_, err := f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)

	outcome, err := f.svc.HandleEvent(ctx, ProviderEvent{
		EventID:         "evt_cancel",
		PaymentIntentID: "pi_test_1",
		Status:          enums.PaymentStatusCanceled,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	outcome, err = f.svc.HandleEvent(ctx, ProviderEvent{
		EventID:         "evt_late_success",
		PaymentIntentID: "pi_test_1",
		Status:          enums.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)

	order := f.orderByID(t, orderID)
	require.Equal(t, enums.OrderStatusFailed, order.Status)

	// no stock was committed for the stale success
	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 6, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)
	require.EqualValues(t, 2, f.eventCount(t))
}

func TestHandleEventIntermediateStatusOnlyStampsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID, _ := f.seedOrder(t, 1, 20)
	_, err := f.svc.CreateIntent(ctx, orderID)
	require.NoError(t, err)

	outcome, err := f.svc.HandleEvent(ctx, ProviderEvent{
		EventID:         "evt_rpm",
		PaymentIntentID: "pi_test_1",
		Status:          enums.PaymentStatusRequiresPaymentMethod,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	order := f.orderByID(t, orderID)
	require.Equal(t, enums.OrderStatusPending, order.Status)

	rows, err := f.svc.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusRequiresPaymentMethod, rows[0].Status)
}

func TestHandleEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleEvent(ctx, ProviderEvent{PaymentIntentID: "pi_1", Status: enums.PaymentStatusSucceeded})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.HandleEvent(ctx, ProviderEvent{EventID: "evt_1", Status: enums.PaymentStatusSucceeded})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.HandleEvent(ctx, ProviderEvent{EventID: "evt_1", PaymentIntentID: "pi_1", Status: "settled"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
