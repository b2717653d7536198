package library

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowAndReturn(t *testing.T) {
	mgr := newManager(t)
	u := register(t, mgr, "reader@example.com")

	loan, err := mgr.Loans.Borrow(2001, u)
	require.NoError(t, err)
	assert.Equal(t, LoanBorrowed, loan.Status)
	assert.Nil(t, loan.ReturnDate)
	assert.Equal(t, 5, book(t, mgr, 2001).Available)

	events := mgr.History.ForUser(u.ID)
	require.Len(t, events, 1)
	assert.Equal(t, EventBorrow, events[0].Type)

	require.NoError(t, mgr.Loans.ReturnLoan(loan.ID, u))

	loans := mgr.Loans.MyLoans(u.ID)
	require.Len(t, loans, 1)
	assert.Equal(t, LoanReturned, loans[0].Status)
	require.NotNil(t, loans[0].ReturnDate)
	assert.True(t, loans[0].ReturnDate.After(loans[0].LoanDate))
	assert.Equal(t, 6, book(t, mgr, 2001).Available)
	assert.Equal(t, EventReturn, mgr.History.ForUser(u.ID)[0].Type)
}

func TestReturnTwice(t *testing.T) {
	mgr := newManager(t)
	u := register(t, mgr, "reader@example.com")
	loan, err := mgr.Loans.Borrow(2001, u)
	require.NoError(t, err)
	require.NoError(t, mgr.Loans.ReturnLoan(loan.ID, u))

	err = mgr.Loans.ReturnLoan(loan.ID, u)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 6, book(t, mgr, 2001).Available)
	assert.Len(t, mgr.History.ForUser(u.ID), 2)
}

func TestReturnErrors(t *testing.T) {
	mgr := newManager(t)
	owner := register(t, mgr, "owner@example.com")
	other := register(t, mgr, "other@example.com")
	loan, err := mgr.Loans.Borrow(2001, owner)
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Loans.ReturnLoan(loan.ID, other), ErrAuthorization)
	assert.ErrorIs(t, mgr.Loans.ReturnLoan(12345, owner), ErrNotFound)
	assert.Equal(t, LoanBorrowed, mgr.Loans.MyLoans(owner.ID)[0].Status)
}

func TestBorrowErrors(t *testing.T) {
	mgr := newManager(t)
	a := admin(t, mgr)
	u := register(t, mgr, "reader@example.com")

	_, err := mgr.Loans.Borrow(1, u)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mgr.Books.Remove(2002, a))
	_, err = mgr.Loans.Borrow(2002, u)
	assert.ErrorIs(t, err, ErrNotFound, "inactive books cannot be borrowed")

	b, err := mgr.Books.Add(NewBook{Title: "Single", Total: 1}, a)
	require.NoError(t, err)
	_, err = mgr.Loans.Borrow(b.ID, u)
	require.NoError(t, err)
	_, err = mgr.Loans.Borrow(b.ID, u)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Zero(t, book(t, mgr, b.ID).Available)
	assert.Len(t, mgr.Loans.MyLoans(u.ID), 1)
}

func TestReturnToInactiveBook(t *testing.T) {
	mgr := newManager(t)
	a := admin(t, mgr)
	u := register(t, mgr, "reader@example.com")
	loan, err := mgr.Loans.Borrow(2001, u)
	require.NoError(t, err)
	require.NoError(t, mgr.Books.Remove(2001, a))

	require.NoError(t, mgr.Loans.ReturnLoan(loan.ID, u))
	assert.Equal(t, 6, book(t, mgr, 2001).Available)
}

func TestReturnAfterTotalWasLowered(t *testing.T) {
	mgr := newManager(t)
	a := admin(t, mgr)
	u := register(t, mgr, "reader@example.com")
	loan, err := mgr.Loans.Borrow(2001, u)
	require.NoError(t, err)

	total := 5
	_, err = mgr.Books.Update(2001, BookPatch{Total: &total}, a)
	require.NoError(t, err)

	require.NoError(t, mgr.Loans.ReturnLoan(loan.ID, u))
	b := book(t, mgr, 2001)
	assert.Equal(t, 5, b.Total)
	assert.Equal(t, 5, b.Available)
	assert.Len(t, mgr.Books.List(), 34, "catalog still readable")
}

func TestMyLoansNewestFirst(t *testing.T) {
	mgr := newManager(t)
	u := register(t, mgr, "reader@example.com")
	other := register(t, mgr, "other@example.com")

	first, err := mgr.Loans.Borrow(2001, u)
	require.NoError(t, err)
	_, err = mgr.Loans.Borrow(2001, other)
	require.NoError(t, err)
	second, err := mgr.Loans.Borrow(2002, u)
	require.NoError(t, err)

	loans := mgr.Loans.MyLoans(u.ID)
	require.Len(t, loans, 2)
	assert.Equal(t, second.ID, loans[0].ID)
	assert.Equal(t, first.ID, loans[1].ID)
}

func TestConcurrentBorrowsKeepStock(t *testing.T) {
	mgr := newManager(t)
	u := register(t, mgr, "reader@example.com")

	const readers = 10
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Loans.Borrow(2001, u)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, out := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrOutOfStock):
			out++
		}
	}
	assert.Equal(t, 6, ok)
	assert.Equal(t, readers-6, out)
	assert.Zero(t, book(t, mgr, 2001).Available)
	assert.Len(t, mgr.Loans.MyLoans(u.ID), 6)
}
