package library

import (
	"strconv"
	"strings"

	"library-catalog/storage"
)

// ParseQuantity reads a quantity typed by a user. Anything that is not a
// positive integer becomes 1.
func ParseQuantity(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// LoanCart collects titles to borrow in one go. Each title appears at most
// once.
type LoanCart struct {
	*env
}

// Items returns the cart contents in insertion order.
func (c *LoanCart) Items() []LoanCartItem {
	return storage.Get(c.store, KeyLoanCart, loanCart{})
}

// Add puts bookID in the cart. Adding a title already there is a no-op.
func (c *LoanCart) Add(bookID int64) ([]LoanCartItem, error) {
	var out loanCart
	err := c.store.Update(func(tx *storage.Tx) error {
		out = storage.Get(tx, KeyLoanCart, loanCart{})
		for _, it := range out {
			if it.BookID == bookID {
				return nil
			}
		}
		out = append(out, LoanCartItem{ID: c.ids.next(), BookID: bookID})
		return tx.Set(KeyLoanCart, out)
	})
	return out, err
}

// Remove drops the item with itemID, if present.
func (c *LoanCart) Remove(itemID int64) ([]LoanCartItem, error) {
	var out loanCart
	err := c.store.Update(func(tx *storage.Tx) error {
		cart := storage.Get(tx, KeyLoanCart, loanCart{})
		out = make(loanCart, 0, len(cart))
		for _, it := range cart {
			if it.ID != itemID {
				out = append(out, it)
			}
		}
		if len(out) == len(cart) {
			return nil
		}
		return tx.Set(KeyLoanCart, out)
	})
	return out, err
}

// Clear empties the cart.
func (c *LoanCart) Clear() error {
	return c.store.Set(KeyLoanCart, loanCart{})
}

// PurchaseCart collects titles and quantities to buy in one go.
type PurchaseCart struct {
	*env
}

// Items returns the cart contents in insertion order.
func (c *PurchaseCart) Items() []PurchaseCartItem {
	return storage.Get(c.store, KeyPurchaseCart, purchaseCart{})
}

// Add puts qty copies of bookID in the cart, merging with an existing line
// for the same title. A qty below 1 counts as 1.
func (c *PurchaseCart) Add(bookID int64, qty int) ([]PurchaseCartItem, error) {
	qty = max(qty, 1)
	var out purchaseCart
	err := c.store.Update(func(tx *storage.Tx) error {
		out = storage.Get(tx, KeyPurchaseCart, purchaseCart{})
		merged := false
		for i := range out {
			if out[i].BookID == bookID {
				out[i].Qty += qty
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, PurchaseCartItem{ID: c.ids.next(), BookID: bookID, Qty: qty})
		}
		return tx.Set(KeyPurchaseCart, out)
	})
	return out, err
}

// Update sets the quantity of itemID. A qty below 1 counts as 1 and an
// unknown item leaves the cart untouched.
func (c *PurchaseCart) Update(itemID int64, qty int) ([]PurchaseCartItem, error) {
	qty = max(qty, 1)
	var out purchaseCart
	err := c.store.Update(func(tx *storage.Tx) error {
		out = storage.Get(tx, KeyPurchaseCart, purchaseCart{})
		for i := range out {
			if out[i].ID == itemID {
				out[i].Qty = qty
				return tx.Set(KeyPurchaseCart, out)
			}
		}
		return nil
	})
	return out, err
}

// Remove drops the item with itemID, if present.
func (c *PurchaseCart) Remove(itemID int64) ([]PurchaseCartItem, error) {
	var out purchaseCart
	err := c.store.Update(func(tx *storage.Tx) error {
		cart := storage.Get(tx, KeyPurchaseCart, purchaseCart{})
		out = make(purchaseCart, 0, len(cart))
		for _, it := range cart {
			if it.ID != itemID {
				out = append(out, it)
			}
		}
		if len(out) == len(cart) {
			return nil
		}
		return tx.Set(KeyPurchaseCart, out)
	})
	return out, err
}

// Clear empties the cart.
func (c *PurchaseCart) Clear() error {
	return c.store.Set(KeyPurchaseCart, purchaseCart{})
}

// Total is what checking out the cart would cost at current prices.
// Lines for unknown books count as zero.
func (c *PurchaseCart) Total() float64 {
	books := storage.Get(c.store, KeyBooks, bookList{})
	var sum float64
	for _, it := range c.Items() {
		if i := books.index(it.BookID); i >= 0 {
			sum += books[i].Price * float64(it.Qty)
		}
	}
	return sum
}
