package library

import (
	_ "embed"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"library-catalog/storage"
)

// Demo administrator written by Seed.
const (
	AdminID       int64 = 1
	AdminEmail          = "admin@local"
	AdminPassword       = "admin123"
)

//go:embed seed_books.json
var seedBooks []byte

func demoBooks() (bookList, error) {
	var books bookList
	if err := json.Unmarshal(seedBooks, &books); err != nil {
		return nil, fmt.Errorf("decode demo catalog: %w", err)
	}
	return books, nil
}

// Seed writes the first-run data: the demo administrator, the demo
// catalog and empty loans, history and carts. Keys that already hold data
// are left alone, so Seed can run on every start.
func (lm *LibraryManager) Seed() error {
	return lm.store.Update(func(tx *storage.Tx) error {
		if !tx.Load(KeyUsers, &userList{}) {
			hash, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), lm.passwordCost)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			admin := User{ID: AdminID, Email: AdminEmail, PasswordHash: string(hash), Role: RoleAdmin}
			if err := tx.Set(KeyUsers, userList{admin}); err != nil {
				return err
			}
		}
		if !tx.Load(KeyBooks, &bookList{}) {
			books, err := demoBooks()
			if err != nil {
				return err
			}
			if err := tx.Set(KeyBooks, books); err != nil {
				return err
			}
		}

		empty := []struct {
			key   string
			value any
		}{
			{KeyLoans, &loanList{}},
			{KeyHistory, &historyList{}},
			{KeyLoanCart, &loanCart{}},
			{KeyPurchaseCart, &purchaseCart{}},
		}
		for _, e := range empty {
			if tx.Load(e.key, e.value) {
				continue
			}
			if err := tx.Set(e.key, e.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset wipes the durable store and seeds it again.
func (lm *LibraryManager) Reset() error {
	if err := lm.store.Clear(); err != nil {
		return err
	}
	lm.log.Warn().Str("path", lm.store.Path()).Msg("store reset to demo data")
	return lm.Seed()
}
