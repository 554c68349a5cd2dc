package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/internal/inventory"
	"github.com/caldercommerce/storefront/internal/reservations"
	"github.com/caldercommerce/storefront/pkg/config"
	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/dbtest"
	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/enums"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/outbox"
)

type stubVariants struct {
	byID map[uuid.UUID]*models.Variant
}

func (s *stubVariants) GetVariant(_ context.Context, id uuid.UUID) (*models.Variant, error) {
	return s.byID[id], nil
}

type fixture struct {
	svc      Service
	conn     *gorm.DB
	variants *stubVariants
	obox     *outbox.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)
	oboxRepo := outbox.NewRepository(conn)
	oboxSvc := outbox.NewService(oboxRepo, nil)
	resSvc, err := reservations.NewService(
		reservations.NewRepository(conn),
		inventory.NewRepository(conn),
		client,
		oboxSvc,
		nil,
	)
	require.NoError(t, err)
	variants := &stubVariants{byID: map[uuid.UUID]*models.Variant{}}
	svc, err := NewService(
		NewRepository(conn),
		resSvc,
		variants,
		client,
		oboxSvc,
		config.ReservationConfig{TTLMinutes: 15, CartTTLMinutes: 60},
		nil,
	)
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, variants: variants, obox: oboxRepo}
}

func (f *fixture) seedVariant(t *testing.T, stock int, maxQty *int) uuid.UUID {
	t.Helper()
	variantID := uuid.New()
	f.variants.byID[variantID] = &models.Variant{
		ID:          variantID,
		ProductID:   uuid.New(),
		MinQuantity: 1,
		MaxQuantity: maxQty,
	}
	require.NoError(t, f.conn.Create(&models.Inventory{
		ID:            uuid.New(),
		VariantID:     variantID,
		StockQuantity: stock,
	}).Error)
	return variantID
}

func (f *fixture) reservedFor(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	var inv models.Inventory
	require.NoError(t, f.conn.Where("variant_id = ?", variantID).First(&inv).Error)
	return inv.ReservedQuantity
}

func TestCreateCart(t *testing.T) {
	f := newFixture(t)
	cart, err := f.svc.CreateCart(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, enums.CartStatusActive, cart.Status)
	require.Equal(t, "USD", cart.Currency)
	require.True(t, cart.ExpiresAt.After(time.Now().Add(55*time.Minute)))

	_, err = f.svc.CreateCart(context.Background(), "DOLLARS")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAddItemReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.svc.CreateCart(ctx, "USD")
	require.NoError(t, err)
	variantID := f.seedVariant(t, 10, nil)

	item, err := f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 3, item.Quantity)
	require.Equal(t, 3, f.reservedFor(t, variantID))

	// same variant again folds into the existing line and hold
	item, err = f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, 5, item.Quantity)
	require.Equal(t, 5, f.reservedFor(t, variantID))

	loaded, err := f.svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
}

func TestAddItemInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.svc.CreateCart(ctx, "USD")
	require.NoError(t, err)
	variantID := f.seedVariant(t, 2, nil)

	_, err = f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 3})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	loaded, err := f.svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Empty(t, loaded.Items)
	require.Zero(t, f.reservedFor(t, variantID))
}

func TestAddItemQuantityBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.svc.CreateCart(ctx, "USD")
	require.NoError(t, err)
	max := 4
	variantID := f.seedVariant(t, 10, &max)

	_, err = f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 5})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 3})
	require.NoError(t, err)

	// folding past the max fails too
	_, err = f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 2})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, 3, f.reservedFor(t, variantID))
}

func TestAddItemUnknownVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.svc.CreateCart(ctx, "USD")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: uuid.New(), Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateItemQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.svc.CreateCart(ctx, "USD")
	require.NoError(t, err)
	variantID := f.seedVariant(t, 10, nil)
	item, err := f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 3})
	require.NoError(t, err)

	updated, err := f.svc.UpdateItemQuantity(ctx, cart.ID, item.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 7, updated.Quantity)
	require.Equal(t, 7, f.reservedFor(t, variantID))

	// over stock: item and hold stay at the old quantity
	_, err = f.svc.UpdateItemQuantity(ctx, cart.ID, item.ID, 20)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	require.Equal(t, 7, f.reservedFor(t, variantID))

	_, err = f.svc.UpdateItemQuantity(ctx, cart.ID, uuid.New(), 2)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.svc.CreateCart(ctx, "USD")
	require.NoError(t, err)
	variantID := f.seedVariant(t, 10, nil)
	item, err := f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 3})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveItem(ctx, cart.ID, item.ID))
	require.Zero(t, f.reservedFor(t, variantID))

	loaded, err := f.svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Empty(t, loaded.Items)

	err = f.svc.RemoveItem(ctx, cart.ID, item.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestShoppableCartGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 10, nil)

	ordered := models.Cart{ID: uuid.New(), Status: enums.CartStatusOrdered, Currency: "USD", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, f.conn.Create(&ordered).Error)
	_, err := f.svc.AddItem(ctx, ordered.ID, AddItemInput{VariantID: variantID, Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	expired := models.Cart{ID: uuid.New(), Status: enums.CartStatusActive, Currency: "USD", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, f.conn.Create(&expired).Error)
	_, err = f.svc.AddItem(ctx, expired.ID, AddItemInput{VariantID: variantID, Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.AddItem(ctx, uuid.New(), AddItemInput{VariantID: variantID, Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAbandonExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 10, nil)

	cart, err := f.svc.CreateCart(ctx, "USD")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, cart.ID, AddItemInput{VariantID: variantID, Quantity: 4})
	require.NoError(t, err)

	// force the cart past its TTL
	require.NoError(t, f.conn.Model(&models.Cart{}).
		Where("id = ?", cart.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	abandoned, err := f.svc.AbandonExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, abandoned)
	require.Zero(t, f.reservedFor(t, variantID))

	var row models.Cart
	require.NoError(t, f.conn.Where("id = ?", cart.ID).First(&row).Error)
	require.Equal(t, enums.CartStatusAbandoned, row.Status)

	events, err := f.obox.ListByAggregate(enums.AggregateCart, cart.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventCartAbandoned, events[0].EventType)

	// nothing left for a second pass
	abandoned, err = f.svc.AbandonExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, abandoned)
}
