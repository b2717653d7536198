package library

import (
	"fmt"

	"library-catalog/storage"
)

// PurchaseLedger sells copies to readers and buys stock in for the library.
type PurchaseLedger struct {
	*env
	history *ActivityHistory
}

// Buy sells qty copies of bookID to user and returns the amount charged.
// Sold copies leave both the available and the total stock.
func (p *PurchaseLedger) Buy(bookID int64, user User, qty int) (float64, error) {
	if qty < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	var amount float64
	err := p.store.Update(func(tx *storage.Tx) error {
		books := storage.Get(tx, KeyBooks, bookList{})
		i := books.index(bookID)
		if i < 0 || !books[i].IsActive {
			return fmt.Errorf("%w: book %d", ErrNotFound, bookID)
		}
		b := &books[i]
		if b.Available < qty {
			return fmt.Errorf("%w: %d of %q requested, %d available", ErrOutOfStock, qty, b.Title, b.Available)
		}
		b.Available -= qty
		b.Total -= qty
		amount = b.Price * float64(qty)

		if err := tx.Set(KeyBooks, books); err != nil {
			return err
		}
		_, err := p.history.append(tx, HistoryEvent{
			UserID:  user.ID,
			Type:    EventBuy,
			Details: fmt.Sprintf("Bought: %s x%d", b.Title, qty),
			BookID:  ptr(bookID),
			Qty:     ptr(qty),
			Amount:  ptr(amount),
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	p.log.Debug().Int64("book", bookID).Int("qty", qty).Float64("amount", amount).Msg("book bought")
	return amount, nil
}

// AddStock adds qty copies of bookID to the shelf. Only administrators may
// restock, and inactive books can be restocked too.
func (p *PurchaseLedger) AddStock(bookID int64, admin User, qty int) error {
	if !admin.IsAdmin() {
		return fmt.Errorf("%w: user %d is not an administrator", ErrAuthorization, admin.ID)
	}
	if qty < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	return p.store.Update(func(tx *storage.Tx) error {
		books := storage.Get(tx, KeyBooks, bookList{})
		i := books.index(bookID)
		if i < 0 {
			return fmt.Errorf("%w: book %d", ErrNotFound, bookID)
		}
		books[i].Total += qty
		books[i].Available += qty
		if err := tx.Set(KeyBooks, books); err != nil {
			return err
		}
		_, err := p.history.append(tx, HistoryEvent{
			UserID:  admin.ID,
			Type:    EventBuyStock,
			Details: fmt.Sprintf("Stock added: %s x%d", books[i].Title, qty),
			BookID:  ptr(bookID),
			Qty:     ptr(qty),
		})
		return err
	})
}
