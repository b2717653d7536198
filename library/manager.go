package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"library-catalog/storage"
)

// ErrEmptyCart is returned when checking out a cart with nothing in it.
var ErrEmptyCart = errors.New("cart is empty")

// LibraryManager wires the repositories to one durable store and one
// session scope, keeping CLI code simple.
type LibraryManager struct {
	Books        *Catalog
	Loans        *LoanLedger
	Purchases    *PurchaseLedger
	History      *ActivityHistory
	LoanCart     *LoanCart
	PurchaseCart *PurchaseCart
	Sessions     *SessionStore

	store        *storage.Store
	session      *storage.Store
	owned        bool
	passwordCost int
	log          zerolog.Logger
}

type managerOptions struct {
	now          func() time.Time
	passwordCost int
	log          zerolog.Logger
	storeOpts    []storage.Option
}

// Option configures a LibraryManager.
type Option func(*managerOptions)

// WithClock replaces time.Now for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) { o.now = now }
}

// WithPasswordCost sets the bcrypt cost for new password hashes.
func WithPasswordCost(cost int) Option {
	return func(o *managerOptions) { o.passwordCost = cost }
}

// WithLogger sets the logger of the manager and of the stores it opens.
func WithLogger(l zerolog.Logger) Option {
	return func(o *managerOptions) { o.log = l }
}

// WithStorageOptions passes options to the durable store opened by
// OpenLibraryManager.
func WithStorageOptions(opts ...storage.Option) Option {
	return func(o *managerOptions) { o.storeOpts = append(o.storeOpts, opts...) }
}

// NewLibraryManager builds the repositories on top of durable and session.
// The caller keeps ownership of both stores.
func NewLibraryManager(durable, session *storage.Store, opts ...Option) *LibraryManager {
	o := managerOptions{
		now:          func() time.Time { return time.Now().UTC() },
		passwordCost: bcrypt.DefaultCost,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &env{
		store: durable,
		ids:   &idGenerator{now: o.now},
		now:   o.now,
		log:   o.log,
	}
	history := &ActivityHistory{env: e}
	return &LibraryManager{
		Books:        &Catalog{env: e, history: history},
		Loans:        &LoanLedger{env: e, history: history},
		Purchases:    &PurchaseLedger{env: e, history: history},
		History:      history,
		LoanCart:     &LoanCart{env: e},
		PurchaseCart: &PurchaseCart{env: e},
		Sessions:     &SessionStore{env: e, scope: session, cost: o.passwordCost},
		store:        durable,
		session:      session,
		passwordCost: o.passwordCost,
		log:          o.log,
	}
}

// OpenLibraryManager opens (or creates) the database at dbPath, gives it a
// fresh in-memory session scope and seeds any missing collections.
func OpenLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	var o managerOptions
	o.log = zerolog.Nop()
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := append([]storage.Option{storage.WithLogger(o.log)}, o.storeOpts...)
	durable, err := storage.Open(dbPath, storeOpts...)
	if err != nil {
		return nil, err
	}
	session, err := storage.OpenMemory(storage.WithLogger(o.log))
	if err != nil {
		durable.Close()
		return nil, err
	}

	lm := NewLibraryManager(durable, session, opts...)
	lm.owned = true
	if err := lm.Seed(); err != nil {
		lm.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	return lm, nil
}

// Close closes the stores opened by OpenLibraryManager. It is a no-op for
// a manager built with NewLibraryManager.
func (lm *LibraryManager) Close() error {
	if !lm.owned {
		return nil
	}
	return errors.Join(lm.session.Close(), lm.store.Close())
}

// Store returns the durable store.
func (lm *LibraryManager) Store() *storage.Store { return lm.store }

// OnChange subscribes to changes of the durable store.
func (lm *LibraryManager) OnChange(l storage.Listener) (unsubscribe func()) {
	return lm.store.OnChange(l)
}

// Watch delivers changes made by other processes until ctx is done.
func (lm *LibraryManager) Watch(ctx context.Context, interval time.Duration) error {
	return lm.store.Watch(ctx, interval)
}

// ------------------ Checkout ------------------

// CheckoutLoans borrows every title in the loan cart for user. It stops at
// the first failure: loans made before it stay, and the cart is emptied
// only when every item went through.
func (lm *LibraryManager) CheckoutLoans(user User) ([]Loan, error) {
	items := lm.LoanCart.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	loans := make([]Loan, 0, len(items))
	for _, it := range items {
		loan, err := lm.Loans.Borrow(it.BookID, user)
		if err != nil {
			return loans, fmt.Errorf("checkout book %d: %w", it.BookID, err)
		}
		loans = append(loans, loan)
	}
	return loans, lm.LoanCart.Clear()
}

// CheckoutPurchases buys every line of the purchase cart for user and
// returns the amount charged so far. Failure handling matches
// CheckoutLoans.
func (lm *LibraryManager) CheckoutPurchases(user User) (float64, error) {
	items := lm.PurchaseCart.Items()
	if len(items) == 0 {
		return 0, ErrEmptyCart
	}
	var total float64
	for _, it := range items {
		amount, err := lm.Purchases.Buy(it.BookID, user, it.Qty)
		if err != nil {
			return total, fmt.Errorf("checkout book %d: %w", it.BookID, err)
		}
		total += amount
	}
	return total, lm.PurchaseCart.Clear()
}

// ------------------ Dashboard ------------------

// Stats are the dashboard figures for one user.
type Stats struct {
	ActiveTitles    int
	CopiesAvailable int
	ActiveLoans     int
	CompletedLoans  int
	Purchases       int
	Recent          []HistoryEvent
}

const recentEvents = 5

// Stats summarises the catalog and the activity of user.
func (lm *LibraryManager) Stats(user User) Stats {
	var st Stats
	for _, b := range lm.Books.List() {
		st.ActiveTitles++
		st.CopiesAvailable += b.Available
	}
	for _, loan := range lm.Loans.MyLoans(user.ID) {
		if loan.Status == LoanBorrowed {
			st.ActiveLoans++
		} else {
			st.CompletedLoans++
		}
	}
	events := lm.History.ForUser(user.ID)
	for _, ev := range events {
		if ev.Type == EventBuy {
			st.Purchases++
		}
	}
	st.Recent = events[:min(len(events), recentEvents)]
	return st
}
