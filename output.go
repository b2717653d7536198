package main

import (
	"fmt"
	"io"
	"strings"

	"library-catalog/library"
)

func printBooks(w io.Writer, books []library.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	fmt.Fprintf(w, "%-14s %-30s %-22s %-12s %8s %9s %s\n", "ID", "Title", "Author", "Category", "Price", "Available", "Active")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, b := range books {
		active := "Yes"
		if !b.IsActive {
			active = "No"
		}
		fmt.Fprintf(w, "%-14d %-30s %-22s %-12s %8.2f %4d/%-4d %s\n",
			b.ID,
			truncateString(b.Title, 30),
			truncateString(b.Author, 22),
			truncateString(b.Category, 12),
			b.Price,
			b.Available, b.Total,
			active)
	}
}

func printLoans(w io.Writer, mgr *library.LibraryManager, loans []library.Loan) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No loans.")
		return
	}
	fmt.Fprintf(w, "%-14s %-30s %-17s %-17s %s\n", "Loan", "Title", "Borrowed", "Returned", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 95))
	for _, l := range loans {
		title := fmt.Sprintf("book %d", l.BookID)
		if b, err := mgr.Books.Get(l.BookID); err == nil {
			title = b.Title
		}
		returned := "-"
		if l.ReturnDate != nil {
			returned = l.ReturnDate.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-14d %-30s %-17s %-17s %s\n",
			l.ID,
			truncateString(title, 30),
			l.LoanDate.Local().Format("2006-01-02 15:04"),
			returned,
			l.Status)
	}
}

func printHistory(w io.Writer, events []library.HistoryEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No activity yet.")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-12s %s", ev.At.Local().Format("2006-01-02 15:04"), ev.Type, ev.Details)
		if ev.Amount != nil {
			line += fmt.Sprintf(" (%.2f)", *ev.Amount)
		}
		fmt.Fprintln(w, line)
	}
}

func printStats(w io.Writer, st library.Stats) {
	fmt.Fprintf(w, "Titles: %d | Copies on shelf: %d | Active loans: %d | Returned: %d | Purchases: %d\n",
		st.ActiveTitles, st.CopiesAvailable, st.ActiveLoans, st.CompletedLoans, st.Purchases)
	if len(st.Recent) > 0 {
		fmt.Fprintln(w, "Recent activity:")
		printHistory(w, st.Recent)
	}
}

// truncateString shortens s to maxLen runes, ending in "..." when cut.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
