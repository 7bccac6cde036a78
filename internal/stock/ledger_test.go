package stock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendahogar/agent-core/internal/catalog"
	"github.com/tiendahogar/agent-core/internal/core/errx"
)

func testCatalog() *catalog.Store {
	return catalog.NewStore([]catalog.Product{
		{ID: "sofa-001", Name: "Sofá Oslo", Category: "sala", Price: 899.99, Stock: 5},
		{ID: "mesa-001", Name: "Mesa Nórdica", Category: "comedor", Price: 459.50, Stock: 10},
	})
}

func TestReserveAndCart(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	res, err := l.Reserve(ctx, "conv-a", "sofa-001", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReservedQuantity)
	assert.Equal(t, 3, res.Available)

	items, total := l.CartTotal(ctx, "conv-a")
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.InDelta(t, 1799.98, total, 0.001)
}

func TestReserveIsAdditive(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 2)
	require.NoError(t, err)
	res, err := l.Reserve(ctx, "conv-a", "sofa-001", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ReservedQuantity)

	items := l.Cart(ctx, "conv-a")
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestReserveRespectsOtherConversationsHolds(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 5)
	require.NoError(t, err)

	// All 5 units held by conv-a: conv-b sees zero availability.
	_, err = l.Reserve(ctx, "conv-b", "sofa-001", 3)
	ins, ok := errx.IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, 0, ins.Available)
	assert.Equal(t, 3, ins.Requested)
}

func TestReserveRejectsOverHeldPlusRequested(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 4)
	require.NoError(t, err)

	_, err = l.Reserve(ctx, "conv-a", "sofa-001", 2)
	ins, ok := errx.IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, 1, ins.Available)
}

func TestRemoveClampsAndNeverFails(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, l.Remove(ctx, "conv-a", "sofa-001", 99))
	assert.Equal(t, 0, l.Remove(ctx, "conv-a", "sofa-001", 1))
	assert.Empty(t, l.Cart(ctx, "conv-a"))
	assert.Equal(t, 5, l.AvailableStock(ctx, "sofa-001"))
}

func TestExpiredHoldsReleaseStock(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	now := time.Now()
	l.nowFunc = func() time.Time { return now }

	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, l.AvailableStock(ctx, "sofa-001"))

	// Past the lease: the hold no longer counts even before the sweeper runs.
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 5, l.AvailableStock(ctx, "sofa-001"))
	assert.Empty(t, l.Cart(ctx, "conv-a"))

	assert.Equal(t, 1, l.ReleaseExpired(ctx))
	assert.Equal(t, 0, l.ReleaseExpired(ctx))

	_, err = l.Reserve(ctx, "conv-b", "sofa-001", 5)
	require.NoError(t, err)
}

func TestConfirmDeductsStockAndProducesOrder(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog()
	l := NewLedger(cat, time.Minute)

	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 2)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, "conv-a", "mesa-001", 1)
	require.NoError(t, err)

	order, err := l.Confirm(ctx, "conv-a", "user-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.Number, "ORD-"))
	require.Len(t, order.Items, 2)
	assert.InDelta(t, 2*899.99+459.50, order.Total, 0.001)

	assert.Equal(t, 3, cat.TotalStock(ctx, "sofa-001"))
	assert.Equal(t, 9, cat.TotalStock(ctx, "mesa-001"))
	assert.Empty(t, l.Cart(ctx, "conv-a"))

	found, err := l.LookupOrder(ctx, order.Number)
	require.NoError(t, err)
	assert.Equal(t, order.Number, found.Number)
}

func TestConfirmEmptyCart(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	_, err := l.Confirm(ctx, "conv-a", "user-1")
	assert.ErrorIs(t, err, errx.ErrEmptyCart)
}

func TestConfirmIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog()
	l := NewLedger(cat, time.Minute)

	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 2)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, "conv-a", "mesa-001", 1)
	require.NoError(t, err)

	// Deplete sofa stock behind the ledger's back; the confirm-time re-check
	// must fail and leave every stock level untouched.
	require.NoError(t, cat.DeductStock(ctx, "sofa-001", 4))

	_, err = l.Confirm(ctx, "conv-a", "user-1")
	_, ok := errx.IsInsufficientStock(err)
	require.True(t, ok)

	assert.Equal(t, 1, cat.TotalStock(ctx, "sofa-001"))
	assert.Equal(t, 10, cat.TotalStock(ctx, "mesa-001"))
	// Holds survive the failed confirmation.
	assert.Len(t, l.Cart(ctx, "conv-a"), 2)
}

func TestStockConservation(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog()
	l := NewLedger(cat, time.Minute)

	// physical stock == available + live holds at every step
	check := func() {
		held := 0
		for _, item := range l.Cart(ctx, "conv-a") {
			if item.ProductID == "sofa-001" {
				held = item.Quantity
			}
		}
		for _, item := range l.Cart(ctx, "conv-b") {
			if item.ProductID == "sofa-001" {
				held += item.Quantity
			}
		}
		assert.Equal(t, cat.TotalStock(ctx, "sofa-001"), l.AvailableStock(ctx, "sofa-001")+held)
	}

	check()
	_, err := l.Reserve(ctx, "conv-a", "sofa-001", 2)
	require.NoError(t, err)
	check()
	_, err = l.Reserve(ctx, "conv-b", "sofa-001", 1)
	require.NoError(t, err)
	check()
	l.Remove(ctx, "conv-a", "sofa-001", 1)
	check()
	_, err = l.Confirm(ctx, "conv-b", "user-2")
	require.NoError(t, err)
	check()
}

func TestInitiateReturn(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(testCatalog(), time.Minute)

	_, err := l.Reserve(ctx, "conv-a", "mesa-001", 1)
	require.NoError(t, err)
	order, err := l.Confirm(ctx, "conv-a", "user-1")
	require.NoError(t, err)

	ret, err := l.InitiateReturn(ctx, order.Number, "llegó dañado")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ret.ID, "RET-"))
	assert.Equal(t, order.Number, ret.OrderNumber)

	_, err = l.InitiateReturn(ctx, "ORD-00000000-XXXXXXXX", "no existe")
	assert.Error(t, err)
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	l := NewLedger(testCatalog(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
