package library

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Storage keys of the persisted collections.
const (
	KeyUsers        = "users"
	KeyBooks        = "books"
	KeyLoans        = "loans"
	KeyHistory      = "history"
	KeyLoanCart     = "loan_cart"
	KeyPurchaseCart = "purchase_cart"

	// KeySession lives in the session scope, not in the durable store.
	KeySession = "session_user"
)

// Role of a registered user.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// User is a registered account. PasswordHash is a bcrypt hash and is
// stripped from the copy kept in the session.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Role         Role   `json:"role"`
}

// IsAdmin reports whether the user may manage the catalog.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Validate checks a stored user record.
func (u User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("user %d: empty email", u.ID)
	}
	if u.Role != RoleAdmin && u.Role != RoleUser {
		return fmt.Errorf("user %d: unknown role %q", u.ID, u.Role)
	}
	return nil
}

type userList []User

func (l userList) Validate() error {
	seen := make(map[string]bool, len(l))
	for _, u := range l {
		if err := u.Validate(); err != nil {
			return err
		}
		if seen[u.Email] {
			return fmt.Errorf("duplicate email %q", u.Email)
		}
		seen[u.Email] = true
	}
	return nil
}

// Book represents a catalog title and its stock. Available copies can be
// lent; Total counts every copy the library owns. Books are never removed,
// only deactivated.
type Book struct {
	ID          int64   `json:"id"`
	ISBN        string  `json:"isbn"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Total       int     `json:"total"`
	Available   int     `json:"available"`
	IsActive    bool    `json:"isActive"`
}

// UnmarshalJSON treats a record without isActive as active.
func (b *Book) UnmarshalJSON(data []byte) error {
	type plain Book
	p := plain{IsActive: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Book(p)
	return nil
}

// Validate checks the stock invariant 0 <= Available <= Total.
func (b Book) Validate() error {
	if b.Price < 0 {
		return fmt.Errorf("book %d: negative price", b.ID)
	}
	if b.Total < 0 || b.Available < 0 || b.Available > b.Total {
		return fmt.Errorf("book %d: available %d / total %d", b.ID, b.Available, b.Total)
	}
	return nil
}

type bookList []Book

func (l bookList) Validate() error {
	for _, b := range l {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (l bookList) index(id int64) int {
	for i := range l {
		if l[i].ID == id {
			return i
		}
	}
	return -1
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "BORROWED"
	LoanReturned LoanStatus = "RETURNED"
)

// Loan records one copy lent to a user. It moves from BORROWED to RETURNED
// exactly once.
type Loan struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"userId"`
	BookID     int64      `json:"bookId"`
	LoanDate   time.Time  `json:"loanDate"`
	ReturnDate *time.Time `json:"returnDate"`
	Status     LoanStatus `json:"status"`
}

type loanList []Loan

func (l loanList) Validate() error {
	for _, loan := range l {
		switch loan.Status {
		case LoanBorrowed:
			if loan.ReturnDate != nil {
				return fmt.Errorf("loan %d: borrowed with return date", loan.ID)
			}
		case LoanReturned:
		default:
			return fmt.Errorf("loan %d: unknown status %q", loan.ID, loan.Status)
		}
	}
	return nil
}

// EventType classifies history entries.
type EventType string

const (
	EventBorrow     EventType = "BORROW"
	EventReturn     EventType = "RETURN"
	EventBuy        EventType = "BUY"
	EventBuyStock   EventType = "BUY_STOCK"
	EventAddBook    EventType = "ADD_BOOK"
	EventUpdateBook EventType = "UPDATE_BOOK"
	EventDeleteBook EventType = "DELETE_BOOK"
)

func (t EventType) valid() bool {
	switch t {
	case EventBorrow, EventReturn, EventBuy, EventBuyStock, EventAddBook, EventUpdateBook, EventDeleteBook:
		return true
	}
	return false
}

// HistoryEvent is an immutable activity log entry.
type HistoryEvent struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"userId"`
	Type    EventType `json:"type"`
	Details string    `json:"details"`
	BookID  *int64    `json:"bookId"`
	Qty     *int      `json:"qty"`
	Amount  *float64  `json:"amount"`
	At      time.Time `json:"at"`
}

type historyList []HistoryEvent

func (l historyList) Validate() error {
	for _, e := range l {
		if !e.Type.valid() {
			return fmt.Errorf("event %d: unknown type %q", e.ID, e.Type)
		}
	}
	return nil
}

// LoanCartItem is a title waiting to be borrowed.
type LoanCartItem struct {
	ID     int64 `json:"id"`
	BookID int64 `json:"bookId"`
}

type loanCart []LoanCartItem

func (c loanCart) Validate() error {
	seen := make(map[int64]bool, len(c))
	for _, it := range c {
		if seen[it.BookID] {
			return fmt.Errorf("book %d twice in loan cart", it.BookID)
		}
		seen[it.BookID] = true
	}
	return nil
}

// PurchaseCartItem is a title and quantity waiting to be bought.
type PurchaseCartItem struct {
	ID     int64 `json:"id"`
	BookID int64 `json:"bookId"`
	Qty    int   `json:"qty"`
}

type purchaseCart []PurchaseCartItem

func (c purchaseCart) Validate() error {
	seen := make(map[int64]bool, len(c))
	for _, it := range c {
		if it.Qty < 1 {
			return fmt.Errorf("cart item %d: qty %d", it.ID, it.Qty)
		}
		if seen[it.BookID] {
			return fmt.Errorf("book %d twice in purchase cart", it.BookID)
		}
		seen[it.BookID] = true
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
