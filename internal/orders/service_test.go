package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/inventory"
	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/dbtest"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/outbox"
	"github.com/caldercommerce/storefront/pkg/pagination"
)

type fixture struct {
	svc  Service
	conn *gorm.DB
	obox *outbox.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)
	oboxRepo := outbox.NewRepository(conn)
	oboxSvc := outbox.NewService(oboxRepo, nil)
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
	svc, err := NewService(NewRepository(conn), invSvc, resSvc, client, oboxSvc, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, obox: oboxRepo}
}

// seedOrder builds a pending order with one item, matching inventory, and a
// committed hold, the shape checkout leaves behind.
func (f *fixture) seedOrder(t *testing.T, stock, qty int) (*models.Order, uuid.UUID) {
	t.Helper()
	cart := models.Cart{ID: uuid.New(), Status: enums.CartStatusOrdered, Currency: "USD", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, f.conn.Create(&cart).Error)

	variantID := uuid.New()
	require.NoError(t, f.conn.Create(&models.Inventory{
		ID:               uuid.New(),
		VariantID:        variantID,
		StockQuantity:    stock,
		ReservedQuantity: qty,
	}).Error)

	intent := "pi_" + uuid.NewString()
	order := models.Order{
		ID:                    uuid.New(),
		CartID:                cart.ID,
		Status:                enums.OrderStatusPending,
		StripePaymentIntentID: &intent,
		Total:                 decimal.NewFromInt(100),
		Currency:              "USD",
	}
	require.NoError(t, f.conn.Omit("Items").Create(&order).Error)
	require.NoError(t, f.conn.Create(&models.OrderItem{
		ID:        uuid.New(),
		OrderID:   order.ID,
		ProductID: uuid.New(),
		VariantID: variantID,
		Quantity:  qty,
		UnitPrice: decimal.NewFromInt(50),
		Currency:  "USD",
	}).Error)
	require.NoError(t, f.conn.Create(&models.Reservation{
		ID:        uuid.New(),
		CartID:    cart.ID,
		VariantID: variantID,
		OrderID:   &order.ID,
		Quantity:  qty,
		Status:    enums.ReservationStatusCommitted,
		ExpiresAt: time.Now().Add(time.Hour),
	}).Error)
	return &order, variantID
}

func (f *fixture) inventoryFor(t *testing.T, variantID uuid.UUID) models.Inventory {
	t.Helper()
	var inv models.Inventory
	require.NoError(t, f.conn.Where("variant_id = ?", variantID).First(&inv).Error)
	return inv
}

func TestTransitionPendingToPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, variantID := f.seedOrder(t, 10, 4)

	updated, err := f.svc.Transition(ctx, order.ID, enums.OrderStatusPaid)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, updated.Status)

	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 6, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)

	var res models.Reservation
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).First(&res).Error)
	require.Equal(t, enums.ReservationStatusFulfilled, res.Status)

	events, err := f.obox.ListByAggregate(enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderPaid, events[0].EventType)
}

func TestTransitionToPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, variantID := f.seedOrder(t, 10, 4)

	_, err := f.svc.Transition(ctx, order.ID, enums.OrderStatusPaid)
	require.NoError(t, err)

	// same target again: no-op success, no second decrement
	updated, err := f.svc.Transition(ctx, order.ID, enums.OrderStatusPaid)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, updated.Status)

	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 6, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)
}

func TestTransitionPendingToFailedReleasesHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, variantID := f.seedOrder(t, 10, 4)

	updated, err := f.svc.Transition(ctx, order.ID, enums.OrderStatusFailed)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusFailed, updated.Status)

	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 10, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)

	events, err := f.obox.ListByAggregate(enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderFailed, events[0].EventType)
}

func TestIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, 10, 2)

	_, err := f.svc.Transition(ctx, order.ID, enums.OrderStatusRefunded)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition))

	_, err = f.svc.Transition(ctx, order.ID, enums.OrderStatusFailed)
	require.NoError(t, err)

	// terminal state rejects everything
	_, err = f.svc.Transition(ctx, order.ID, enums.OrderStatusPaid)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition))

	_, err = f.svc.Transition(ctx, order.ID, "shipped")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReturnAndRefundAreRecordOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, variantID := f.seedOrder(t, 10, 4)

	_, err := f.svc.Transition(ctx, order.ID, enums.OrderStatusPaid)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, order.ID, enums.OrderStatusReturned)
	require.NoError(t, err)
	updated, err := f.svc.Transition(ctx, order.ID, enums.OrderStatusRefunded)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusRefunded, updated.Status)

	// stock stays committed; re-entry is an explicit adjustment
	inv := f.inventoryFor(t, variantID)
	require.Equal(t, 6, inv.StockQuantity)
	require.Equal(t, 0, inv.ReservedQuantity)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, variantID := f.seedOrder(t, 10, 3)

	updated, err := f.svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, updated.Status)
	require.Equal(t, 0, f.inventoryFor(t, variantID).ReservedQuantity)

	paidOrder, _ := f.seedOrder(t, 10, 1)
	_, err = f.svc.Transition(ctx, paidOrder.ID, enums.OrderStatusPaid)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, paidOrder.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition))
}

func TestUpdateEnrichment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, 10, 1)

	email := "buyer@example.com"
	city := "Portland"
	subtotal := decimal.NewFromInt(90)
	updated, err := f.svc.Update(ctx, order.ID, UpdateOrderInput{
		Email:        &email,
		ShippingCity: &city,
		Subtotal:     &subtotal,
	})
	require.NoError(t, err)
	require.Equal(t, email, *updated.Email)
	require.Equal(t, city, *updated.ShippingCity)
	require.True(t, subtotal.Equal(*updated.Subtotal))
	require.Nil(t, updated.ShippingCountry)

	// empty update is a no-op
	again, err := f.svc.Update(ctx, order.ID, UpdateOrderInput{})
	require.NoError(t, err)
	require.Equal(t, email, *again.Email)

	_, err = f.svc.Update(ctx, uuid.New(), UpdateOrderInput{Email: &email})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListWithStatusFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.seedOrder(t, 10, 1)
	}
	failed, _ := f.seedOrder(t, 10, 1)
	_, err := f.svc.Transition(ctx, failed.ID, enums.OrderStatusFailed)
	require.NoError(t, err)

	page, err := f.svc.List(ctx, pagination.Params{Page: 1, Limit: 2}, nil)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	require.EqualValues(t, 4, page.Pagination.Total)
	require.True(t, page.Pagination.HasNext)

	status := enums.OrderStatusFailed
	page, err = f.svc.List(ctx, pagination.Params{Page: 1, Limit: 10}, &status)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.Equal(t, failed.ID, page.Data[0].ID)
}

func TestGetByPaymentIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, 10, 1)

	found, err := f.svc.GetByPaymentIntent(ctx, *order.StripePaymentIntentID)
	require.NoError(t, err)
	require.Equal(t, order.ID, found.ID)

	_, err = f.svc.GetByPaymentIntent(ctx, "pi_unknown")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownOrder))
}
