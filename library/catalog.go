package library

import (
	"fmt"
	"strings"

	"library-catalog/storage"
)

// Catalog manages book records. Books are deactivated, never deleted, so
// old loans and history keep pointing at something.
type Catalog struct {
	*env
	history *ActivityHistory
}

// NewBook holds the fields an administrator supplies for a new title.
type NewBook struct {
	ISBN        string
	Title       string
	Author      string
	Category    string
	Description string
	Price       float64
	Total       int
}

// BookPatch lists the fields to overwrite; nil fields are left alone.
// Available is not derived from Total: set both if both should move.
type BookPatch struct {
	ISBN        *string
	Title       *string
	Author      *string
	Category    *string
	Description *string
	Price       *float64
	Total       *int
	Available   *int
	IsActive    *bool
}

func (p BookPatch) apply(b *Book) {
	if p.ISBN != nil {
		b.ISBN = *p.ISBN
	}
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Price != nil {
		b.Price = *p.Price
	}
	if p.Total != nil {
		b.Total = *p.Total
	}
	if p.Available != nil {
		b.Available = *p.Available
	}
	if p.IsActive != nil {
		b.IsActive = *p.IsActive
	}
}

// List returns the active books in storage order.
func (c *Catalog) List() []Book {
	books := storage.Get(c.store, KeyBooks, bookList{})
	out := make([]Book, 0, len(books))
	for _, b := range books {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out
}

// All returns every book, deactivated ones included.
func (c *Catalog) All() []Book {
	return storage.Get(c.store, KeyBooks, bookList{})
}

// Get returns the book with id, active or not.
func (c *Catalog) Get(id int64) (Book, error) {
	books := storage.Get(c.store, KeyBooks, bookList{})
	if i := books.index(id); i >= 0 {
		return books[i], nil
	}
	return Book{}, fmt.Errorf("%w: book %d", ErrNotFound, id)
}

// Search returns the active books whose title, author or category contains
// term, ignoring case. An empty term matches everything.
func (c *Catalog) Search(term string) []Book {
	term = strings.ToLower(strings.TrimSpace(term))
	books := c.List()
	if term == "" {
		return books
	}
	out := make([]Book, 0)
	for _, b := range books {
		for _, field := range []string{b.Title, b.Author, b.Category} {
			if strings.Contains(strings.ToLower(field), term) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// Add creates an active book with every copy available.
func (c *Catalog) Add(in NewBook, actor User) (Book, error) {
	if in.Price < 0 || in.Total < 0 {
		return Book{}, fmt.Errorf("%w: price %.2f, total %d", ErrInvalidQuantity, in.Price, in.Total)
	}
	book := Book{
		ID:          c.ids.next(),
		ISBN:        in.ISBN,
		Title:       in.Title,
		Author:      in.Author,
		Category:    in.Category,
		Description: in.Description,
		Price:       in.Price,
		Total:       in.Total,
		Available:   in.Total,
		IsActive:    true,
	}

	err := c.store.Update(func(tx *storage.Tx) error {
		books := storage.Get(tx, KeyBooks, bookList{})
		books = append(books, book)
		if err := tx.Set(KeyBooks, books); err != nil {
			return err
		}
		_, err := c.history.append(tx, HistoryEvent{
			UserID:  actor.ID,
			Type:    EventAddBook,
			Details: "Added: " + book.Title,
			BookID:  ptr(book.ID),
		})
		return err
	})
	if err != nil {
		return Book{}, err
	}
	c.log.Debug().Int64("book", book.ID).Int64("actor", actor.ID).Msg("book added")
	return book, nil
}

// Update merges patch onto the book. A patch that would leave the stock
// outside 0 <= available <= total, or the price negative, is rejected.
func (c *Catalog) Update(id int64, patch BookPatch, actor User) (Book, error) {
	var updated Book
	err := c.store.Update(func(tx *storage.Tx) error {
		books := storage.Get(tx, KeyBooks, bookList{})
		i := books.index(id)
		if i < 0 {
			return fmt.Errorf("%w: book %d", ErrNotFound, id)
		}
		b := books[i]
		patch.apply(&b)
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
		}
		books[i] = b
		if err := tx.Set(KeyBooks, books); err != nil {
			return err
		}
		updated = b
		_, err := c.history.append(tx, HistoryEvent{
			UserID:  actor.ID,
			Type:    EventUpdateBook,
			Details: "Updated: " + b.Title,
			BookID:  ptr(b.ID),
		})
		return err
	})
	if err != nil {
		return Book{}, err
	}
	return updated, nil
}

// Remove deactivates the book. Stock is left as it is and removing an
// inactive book again changes nothing but the history.
func (c *Catalog) Remove(id int64, actor User) error {
	return c.store.Update(func(tx *storage.Tx) error {
		books := storage.Get(tx, KeyBooks, bookList{})
		i := books.index(id)
		if i < 0 {
			return fmt.Errorf("%w: book %d", ErrNotFound, id)
		}
		books[i].IsActive = false
		if err := tx.Set(KeyBooks, books); err != nil {
			return err
		}
		_, err := c.history.append(tx, HistoryEvent{
			UserID:  actor.ID,
			Type:    EventDeleteBook,
			Details: "Deleted: " + books[i].Title,
			BookID:  ptr(id),
		})
		return err
	})
}
