package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"library-catalog/library"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session; sign-in lasts until exit",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			runShell(a)
			return nil
		},
	}
}

func printShellHelp(a *app) {
	fmt.Fprintln(a.out, "Available commands:")
	fmt.Fprintln(a.out, "  Account: login, register, logout, whoami")
	fmt.Fprintln(a.out, "  Catalog: list books, search book, dashboard")
	fmt.Fprintln(a.out, "  Loans: borrow, return, my loans, history")
	fmt.Fprintln(a.out, "  Loan cart: cart add, cart, cart remove, cart checkout")
	fmt.Fprintln(a.out, "  Purchases: buy, basket add, basket, basket qty, basket remove, basket checkout")
	fmt.Fprintln(a.out, "  Admin: all books, add book, update book, remove book, add stock, reset")
	fmt.Fprintln(a.out, "  System: help, exit")
}

func runShell(a *app) {
	fmt.Fprintln(a.out, "Welcome to the Library Catalog!")
	fmt.Fprintf(a.out, "Demo administrator: %s\n", library.AdminEmail)
	printShellHelp(a)

	handlers := map[string]func(*app){
		"login":           handleLogin,
		"register":        handleRegister,
		"logout":          handleLogout,
		"whoami":          handleWhoami,
		"list books":      func(a *app) { printBooks(a.out, a.mgr.Books.List()) },
		"search book":     handleSearch,
		"dashboard":       withUser(handleDashboard),
		"borrow":          withUser(handleBorrow),
		"return":          withUser(handleReturn),
		"my loans":        withUser(handleMyLoans),
		"history":         withUser(handleHistory),
		"cart add":        withUser(handleCartAdd),
		"cart":            withUser(handleCart),
		"cart remove":     withUser(handleCartRemove),
		"cart checkout":   withUser(handleCartCheckout),
		"buy":             withUser(handleBuy),
		"basket add":      withUser(handleBasketAdd),
		"basket":          withUser(handleBasket),
		"basket qty":      withUser(handleBasketQty),
		"basket remove":   withUser(handleBasketRemove),
		"basket checkout": withUser(handleBasketCheckout),
		"all books":       withAdmin(func(a *app, _ library.User) { printBooks(a.out, a.mgr.Books.All()) }),
		"add book":        withAdmin(handleAddBook),
		"update book":     withAdmin(handleUpdateBook),
		"remove book":     withAdmin(handleRemoveBook),
		"add stock":       withAdmin(handleAddStock),
		"reset":           withAdmin(handleReset),
		"help":            printShellHelp,
	}

	for {
		cmd, ok := a.in.line("\n> ")
		if !ok {
			break
		}
		if cmd == "exit" {
			fmt.Fprintln(a.out, "Goodbye!")
			return
		}
		if cmd == "" {
			continue
		}
		h, found := handlers[cmd]
		if !found {
			fmt.Fprintln(a.out, "Unknown command. Type 'help' to see the available commands.")
			continue
		}
		h(a)
	}
}

// withUser runs h for the signed-in user.
func withUser(h func(*app, library.User)) func(*app) {
	return func(a *app) {
		u := a.mgr.Sessions.Current()
		if u == nil {
			fmt.Fprintln(a.out, "Please login first.")
			return
		}
		h(a, *u)
	}
}

func withAdmin(h func(*app, library.User)) func(*app) {
	return withUser(func(a *app, u library.User) {
		if !u.IsAdmin() {
			fmt.Fprintln(a.out, "Administrators only.")
			return
		}
		h(a, u)
	})
}

func report(a *app, action string, err error) {
	switch {
	case errors.Is(err, library.ErrOutOfStock):
		fmt.Fprintf(a.out, "Error %s: not enough copies (%v)\n", action, err)
	default:
		fmt.Fprintf(a.out, "Error %s: %v\n", action, err)
		a.log.Debug().Err(err).Str("action", action).Msg("shell command failed")
	}
}

func handleLogin(a *app) {
	email, ok := a.in.line("Email: ")
	if !ok {
		return
	}
	password, err := a.in.password("Password: ")
	if err != nil {
		fmt.Fprintf(a.out, "Error reading password: %v\n", err)
		return
	}
	u, err := a.mgr.Sessions.Login(email, password)
	if err != nil {
		fmt.Fprintf(a.out, "Authentication failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", u.Email, u.Role)
}

func handleRegister(a *app) {
	email, ok := a.in.line("Email: ")
	if !ok {
		return
	}
	password, err := a.in.password(fmt.Sprintf("Choose a password for %s: ", email))
	if err != nil {
		fmt.Fprintf(a.out, "Error reading password: %v\n", err)
		return
	}
	if strings.TrimSpace(password) == "" {
		fmt.Fprintln(a.out, "Error: Password cannot be empty")
		return
	}
	u, err := a.mgr.Sessions.Register(email, password)
	if err != nil {
		report(a, "registering", err)
		return
	}
	fmt.Fprintf(a.out, "Registered %s with ID %d. You can login now.\n", u.Email, u.ID)
}

func handleLogout(a *app) {
	if err := a.mgr.Sessions.Logout(); err != nil {
		report(a, "logging out", err)
		return
	}
	fmt.Fprintln(a.out, "Signed out.")
}

func handleWhoami(a *app) {
	if u := a.mgr.Sessions.Current(); u != nil {
		fmt.Fprintf(a.out, "%s (ID: %d, %s)\n", u.Email, u.ID, u.Role)
		return
	}
	fmt.Fprintln(a.out, "Not signed in.")
}

func handleSearch(a *app) {
	query, ok := a.in.line("Query: ")
	if !ok {
		return
	}
	books := a.mgr.Books.Search(query)
	fmt.Fprintf(a.out, "Found %d book(s) matching '%s':\n", len(books), query)
	printBooks(a.out, books)
}

func handleDashboard(a *app, u library.User) {
	printStats(a.out, a.mgr.Stats(u))
}

func handleBorrow(a *app, u library.User) {
	bookID, ok := a.in.id("Book ID: ")
	if !ok {
		return
	}
	loan, err := a.mgr.Loans.Borrow(bookID, u)
	if err != nil {
		report(a, "borrowing", err)
		return
	}
	b, _ := a.mgr.Books.Get(bookID)
	fmt.Fprintf(a.out, "Book '%s' borrowed (loan %d)\n", b.Title, loan.ID)
}

func handleReturn(a *app, u library.User) {
	loanID, ok := a.in.id("Loan ID: ")
	if !ok {
		return
	}
	if err := a.mgr.Loans.ReturnLoan(loanID, u); err != nil {
		report(a, "returning", err)
		return
	}
	fmt.Fprintf(a.out, "Loan %d returned\n", loanID)
}

func handleMyLoans(a *app, u library.User) {
	printLoans(a.out, a.mgr, a.mgr.Loans.MyLoans(u.ID))
}

func handleHistory(a *app, u library.User) {
	printHistory(a.out, a.mgr.History.ForUser(u.ID))
}

func handleCartAdd(a *app, _ library.User) {
	bookID, ok := a.in.id("Book ID: ")
	if !ok {
		return
	}
	items, err := a.mgr.LoanCart.Add(bookID)
	if err != nil {
		report(a, "adding to cart", err)
		return
	}
	fmt.Fprintf(a.out, "Loan cart has %d item(s)\n", len(items))
}

func handleCart(a *app, _ library.User) {
	items := a.mgr.LoanCart.Items()
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Loan cart is empty.")
		return
	}
	for _, it := range items {
		title := fmt.Sprintf("book %d", it.BookID)
		if b, err := a.mgr.Books.Get(it.BookID); err == nil {
			title = b.Title
		}
		fmt.Fprintf(a.out, "%-14d %s\n", it.ID, title)
	}
}

func handleCartRemove(a *app, _ library.User) {
	itemID, ok := a.in.id("Item ID: ")
	if !ok {
		return
	}
	if _, err := a.mgr.LoanCart.Remove(itemID); err != nil {
		report(a, "removing from cart", err)
	}
}

func handleCartCheckout(a *app, u library.User) {
	loans, err := a.mgr.CheckoutLoans(u)
	if err != nil {
		report(a, "checking out", err)
		if len(loans) > 0 {
			fmt.Fprintf(a.out, "%d loan(s) went through before the error; the cart was kept.\n", len(loans))
		}
		return
	}
	fmt.Fprintf(a.out, "Borrowed %d book(s)\n", len(loans))
}

func handleBuy(a *app, u library.User) {
	bookID, ok := a.in.id("Book ID: ")
	if !ok {
		return
	}
	s, ok := a.in.line("Quantity: ")
	if !ok {
		return
	}
	qty := library.ParseQuantity(s)
	amount, err := a.mgr.Purchases.Buy(bookID, u, qty)
	if err != nil {
		report(a, "buying", err)
		return
	}
	fmt.Fprintf(a.out, "Bought %d copies for %.2f\n", qty, amount)
}

func handleBasketAdd(a *app, _ library.User) {
	bookID, ok := a.in.id("Book ID: ")
	if !ok {
		return
	}
	s, ok := a.in.line("Quantity: ")
	if !ok {
		return
	}
	items, err := a.mgr.PurchaseCart.Add(bookID, library.ParseQuantity(s))
	if err != nil {
		report(a, "adding to basket", err)
		return
	}
	fmt.Fprintf(a.out, "Basket has %d line(s)\n", len(items))
}

func handleBasket(a *app, _ library.User) {
	items := a.mgr.PurchaseCart.Items()
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Basket is empty.")
		return
	}
	for _, it := range items {
		title := fmt.Sprintf("book %d", it.BookID)
		if b, err := a.mgr.Books.Get(it.BookID); err == nil {
			title = b.Title
		}
		fmt.Fprintf(a.out, "%-14d %-30s x%d\n", it.ID, truncateString(title, 30), it.Qty)
	}
	fmt.Fprintf(a.out, "Total: %.2f\n", a.mgr.PurchaseCart.Total())
}

func handleBasketQty(a *app, _ library.User) {
	itemID, ok := a.in.id("Item ID: ")
	if !ok {
		return
	}
	s, ok := a.in.line("Quantity: ")
	if !ok {
		return
	}
	if _, err := a.mgr.PurchaseCart.Update(itemID, library.ParseQuantity(s)); err != nil {
		report(a, "updating basket", err)
	}
}

func handleBasketRemove(a *app, _ library.User) {
	itemID, ok := a.in.id("Item ID: ")
	if !ok {
		return
	}
	if _, err := a.mgr.PurchaseCart.Remove(itemID); err != nil {
		report(a, "removing from basket", err)
	}
}

func handleBasketCheckout(a *app, u library.User) {
	total, err := a.mgr.CheckoutPurchases(u)
	if err != nil {
		report(a, "checking out", err)
		if total > 0 {
			fmt.Fprintf(a.out, "%.2f was charged before the error; the basket was kept.\n", total)
		}
		return
	}
	fmt.Fprintf(a.out, "Paid %.2f\n", total)
}

func handleAddBook(a *app, u library.User) {
	var in library.NewBook
	var ok bool
	if in.Title, ok = a.in.line("Title: "); !ok {
		return
	}
	if in.Author, ok = a.in.line("Author: "); !ok {
		return
	}
	if in.Category, ok = a.in.line("Category: "); !ok {
		return
	}
	s, ok := a.in.line("Price: ")
	if !ok {
		return
	}
	if _, err := fmt.Sscan(s, &in.Price); err != nil {
		fmt.Fprintf(a.out, "Invalid price: %s\n", s)
		return
	}
	if s, ok = a.in.line("Copies: "); !ok {
		return
	}
	in.Total = library.ParseQuantity(s)

	b, err := a.mgr.Books.Add(in, u)
	if err != nil {
		report(a, "adding book", err)
		return
	}
	fmt.Fprintf(a.out, "Added book ID %d\n", b.ID)
}

func handleUpdateBook(a *app, u library.User) {
	id, ok := a.in.id("Book ID: ")
	if !ok {
		return
	}
	b, err := a.mgr.Books.Get(id)
	if err != nil {
		report(a, "updating book", err)
		return
	}
	fmt.Fprintln(a.out, "Press Enter to keep the current value.")

	var patch library.BookPatch
	if s, ok := a.in.line(fmt.Sprintf("Title [%s]: ", b.Title)); ok && s != "" {
		patch.Title = &s
	}
	if s, ok := a.in.line(fmt.Sprintf("Author [%s]: ", b.Author)); ok && s != "" {
		patch.Author = &s
	}
	if s, ok := a.in.line(fmt.Sprintf("Price [%.2f]: ", b.Price)); ok && s != "" {
		var price float64
		if _, err := fmt.Sscan(s, &price); err != nil {
			fmt.Fprintf(a.out, "Invalid price: %s\n", s)
			return
		}
		patch.Price = &price
	}

	b, err = a.mgr.Books.Update(id, patch, u)
	if err != nil {
		report(a, "updating book", err)
		return
	}
	printBooks(a.out, []library.Book{b})
}

func handleRemoveBook(a *app, u library.User) {
	id, ok := a.in.id("Book ID: ")
	if !ok {
		return
	}
	if err := a.mgr.Books.Remove(id, u); err != nil {
		report(a, "removing book", err)
		return
	}
	fmt.Fprintf(a.out, "Book %d removed from the catalog\n", id)
}

func handleAddStock(a *app, u library.User) {
	id, ok := a.in.id("Book ID: ")
	if !ok {
		return
	}
	s, ok := a.in.line("Copies to add: ")
	if !ok {
		return
	}
	qty := library.ParseQuantity(s)
	if err := a.mgr.Purchases.AddStock(id, u, qty); err != nil {
		report(a, "adding stock", err)
		return
	}
	fmt.Fprintf(a.out, "Added %d copies to book %d\n", qty, id)
}

func handleReset(a *app, _ library.User) {
	answer, ok := a.in.line("This erases every account, loan and purchase. Type 'yes' to continue: ")
	if !ok || answer != "yes" {
		fmt.Fprintln(a.out, "Reset cancelled.")
		return
	}
	if err := a.mgr.Reset(); err != nil {
		report(a, "resetting", err)
		return
	}
	fmt.Fprintln(a.out, "Demo data restored.")
}
