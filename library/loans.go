package library

import (
	"fmt"

	"library-catalog/storage"
)

// LoanLedger lends copies and takes them back.
type LoanLedger struct {
	*env
	history *ActivityHistory
}

// Borrow lends one copy of bookID to user. The stock change, the new loan
// and the BORROW event are committed together.
func (l *LoanLedger) Borrow(bookID int64, user User) (Loan, error) {
	var loan Loan
	err := l.store.Update(func(tx *storage.Tx) error {
		books := storage.Get(tx, KeyBooks, bookList{})
		i := books.index(bookID)
		if i < 0 || !books[i].IsActive {
			return fmt.Errorf("%w: book %d", ErrNotFound, bookID)
		}
		if books[i].Available < 1 {
			return fmt.Errorf("%w: no copies of %q left to lend", ErrOutOfStock, books[i].Title)
		}
		books[i].Available--

		loans := storage.Get(tx, KeyLoans, loanList{})
		loan = Loan{
			ID:       l.ids.next(),
			UserID:   user.ID,
			BookID:   bookID,
			LoanDate: l.now(),
			Status:   LoanBorrowed,
		}
		loans = append(loans, loan)

		if err := tx.Set(KeyBooks, books); err != nil {
			return err
		}
		if err := tx.Set(KeyLoans, loans); err != nil {
			return err
		}
		_, err := l.history.append(tx, HistoryEvent{
			UserID:  user.ID,
			Type:    EventBorrow,
			Details: "Borrowed: " + books[i].Title,
			BookID:  ptr(bookID),
		})
		return err
	})
	if err != nil {
		return Loan{}, err
	}
	l.log.Debug().Int64("loan", loan.ID).Int64("book", bookID).Int64("user", user.ID).Msg("book borrowed")
	return loan, nil
}

// ReturnLoan closes a loan of user. The copy goes back on the shelf unless
// the book has disappeared or is already fully stocked.
func (l *LoanLedger) ReturnLoan(loanID int64, user User) error {
	return l.store.Update(func(tx *storage.Tx) error {
		loans := storage.Get(tx, KeyLoans, loanList{})
		j := -1
		for k := range loans {
			if loans[k].ID == loanID {
				j = k
				break
			}
		}
		if j < 0 {
			return fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
		}
		loan := &loans[j]
		if loan.UserID != user.ID {
			return fmt.Errorf("%w: loan %d belongs to another user", ErrAuthorization, loanID)
		}
		if loan.Status != LoanBorrowed {
			return fmt.Errorf("%w: loan %d already returned", ErrInvalidState, loanID)
		}
		loan.Status = LoanReturned
		loan.ReturnDate = ptr(l.now())

		books := storage.Get(tx, KeyBooks, bookList{})
		title := fmt.Sprintf("book %d", loan.BookID)
		if i := books.index(loan.BookID); i >= 0 {
			title = books[i].Title
			if books[i].Available < books[i].Total {
				books[i].Available++
			}
			if err := tx.Set(KeyBooks, books); err != nil {
				return err
			}
		}
		if err := tx.Set(KeyLoans, loans); err != nil {
			return err
		}
		_, err := l.history.append(tx, HistoryEvent{
			UserID:  user.ID,
			Type:    EventReturn,
			Details: "Returned: " + title,
			BookID:  ptr(loan.BookID),
		})
		return err
	})
}

// MyLoans returns the loans of userID, newest first.
func (l *LoanLedger) MyLoans(userID int64) []Loan {
	loans := storage.Get(l.store, KeyLoans, loanList{})
	out := make([]Loan, 0)
	for i := len(loans) - 1; i >= 0; i-- {
		if loans[i].UserID == userID {
			out = append(out, loans[i])
		}
	}
	return out
}

// Outstanding counts the loans still BORROWED across all users.
func (l *LoanLedger) Outstanding() int {
	n := 0
	for _, loan := range storage.Get(l.store, KeyLoans, loanList{}) {
		if loan.Status == LoanBorrowed {
			n++
		}
	}
	return n
}
