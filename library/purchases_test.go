package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyReducesStockAndRecordsAmount(t *testing.T) {
	mgr := newManager(t)
	a := admin(t, mgr)
	u := register(t, mgr, "reader@example.com")
	b, err := mgr.Books.Add(NewBook{Title: "Twenty", Price: 20, Total: 5}, a)
	require.NoError(t, err)

	amount, err := mgr.Purchases.Buy(b.ID, u, 3)
	require.NoError(t, err)
	assert.Equal(t, 60.0, amount)

	got := book(t, mgr, b.ID)
	assert.Equal(t, 2, got.Available)
	assert.Equal(t, 2, got.Total)

	events := mgr.History.ForUser(u.ID)
	require.Len(t, events, 1)
	assert.Equal(t, EventBuy, events[0].Type)
	require.NotNil(t, events[0].Qty)
	require.NotNil(t, events[0].Amount)
	assert.Equal(t, 3, *events[0].Qty)
	assert.Equal(t, 60.0, *events[0].Amount)
}

func TestBuyErrors(t *testing.T) {
	mgr := newManager(t)
	u := register(t, mgr, "reader@example.com")

	for _, qty := range []int{0, -4} {
		_, err := mgr.Purchases.Buy(2001, u, qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
	_, err := mgr.Purchases.Buy(1, u, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = mgr.Purchases.Buy(2001, u, 7)
	assert.ErrorIs(t, err, ErrOutOfStock)

	b := book(t, mgr, 2001)
	assert.Equal(t, 6, b.Total)
	assert.Equal(t, 6, b.Available)
	assert.Empty(t, mgr.History.ForUser(u.ID))
}

func TestBuyCannotTakeLentCopies(t *testing.T) {
	mgr := newManager(t)
	u := register(t, mgr, "reader@example.com")
	_, err := mgr.Loans.Borrow(2005, u)
	require.NoError(t, err)

	_, err = mgr.Purchases.Buy(2005, u, 3)
	require.ErrorIs(t, err, ErrOutOfStock)
	_, err = mgr.Purchases.Buy(2005, u, 2)
	require.NoError(t, err)

	b := book(t, mgr, 2005)
	assert.Zero(t, b.Available)
	assert.Equal(t, 1, b.Total, "the lent copy is still owned")
}

func TestAddStockRequiresAdmin(t *testing.T) {
	mgr := newManager(t)
	u := register(t, mgr, "reader@example.com")

	err := mgr.Purchases.AddStock(2001, u, 5)
	require.ErrorIs(t, err, ErrAuthorization)
	assert.Equal(t, 6, book(t, mgr, 2001).Total)
}

func TestAddStock(t *testing.T) {
	mgr := newManager(t)
	a := admin(t, mgr)
	require.NoError(t, mgr.Books.Remove(2001, a))

	require.NoError(t, mgr.Purchases.AddStock(2001, a, 4))
	b := book(t, mgr, 2001)
	assert.Equal(t, 10, b.Total)
	assert.Equal(t, 10, b.Available)

	ev := mgr.History.ForUser(a.ID)[0]
	assert.Equal(t, EventBuyStock, ev.Type)
	assert.Equal(t, 4, *ev.Qty)
	assert.Nil(t, ev.Amount)

	assert.ErrorIs(t, mgr.Purchases.AddStock(2001, a, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, mgr.Purchases.AddStock(1, a, 1), ErrNotFound)
}
