package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"library-catalog/library"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID: %s", s)
	}
	return id, nil
}

func newBooksCmd(a *app) *cobra.Command {
	books := &cobra.Command{
		Use:   "books",
		Short: "Browse the catalog",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if all {
				printBooks(a.out, a.mgr.Books.All())
			} else {
				printBooks(a.out, a.mgr.Books.List())
			}
			return nil
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include removed books")

	search := &cobra.Command{
		Use:   "search <term>",
		Short: "Search titles, authors and categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			printBooks(a.out, a.mgr.Books.Search(args[0]))
			return nil
		},
	}

	books.AddCommand(list, search)
	return books
}

func newBorrowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow <book-id>",
		Short: "Borrow a copy of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			bookID, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := a.signIn()
			if err != nil {
				return err
			}
			loan, err := a.mgr.Loans.Borrow(bookID, u)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Loan %d created for book %d\n", loan.ID, bookID)
			return nil
		},
	}
}

func newReturnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Return a borrowed copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			loanID, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := a.signIn()
			if err != nil {
				return err
			}
			if err := a.mgr.Loans.ReturnLoan(loanID, u); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Loan %d returned\n", loanID)
			return nil
		},
	}
}

func newBuyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <book-id> [qty]",
		Short: "Buy copies of a book",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			bookID, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 2 {
				qty = library.ParseQuantity(args[1])
			}
			u, err := a.signIn()
			if err != nil {
				return err
			}
			amount, err := a.mgr.Purchases.Buy(bookID, u, qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Bought %d x book %d for %.2f\n", qty, bookID, amount)
			return nil
		},
	}
}

func newLoansCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "loans",
		Short: "Show your loans",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			u, err := a.signIn()
			if err != nil {
				return err
			}
			printLoans(a.out, a.mgr, a.mgr.Loans.MyLoans(u.ID))
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show your activity",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			u, err := a.signIn()
			if err != nil {
				return err
			}
			printHistory(a.out, a.mgr.History.ForUser(u.ID))
			return nil
		},
	}
}

// bookFlags binds the editable book fields to cmd.
type bookFlags struct {
	isbn, title, author, category, description string
	price                                      float64
	total, available                           int
	active                                     bool
}

func (f *bookFlags) bind(cmd *cobra.Command, withStock bool) {
	cmd.Flags().StringVar(&f.isbn, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&f.title, "title", "", "title")
	cmd.Flags().StringVar(&f.author, "author", "", "author")
	cmd.Flags().StringVar(&f.category, "category", "", "category")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().Float64Var(&f.price, "price", 0, "price")
	cmd.Flags().IntVar(&f.total, "total", 0, "copies owned")
	if withStock {
		cmd.Flags().IntVar(&f.available, "available", 0, "copies on the shelf")
		cmd.Flags().BoolVar(&f.active, "active", true, "listed in the catalog")
	}
}

// patch keeps only the flags given on the command line.
func (f *bookFlags) patch(cmd *cobra.Command) library.BookPatch {
	var p library.BookPatch
	changed := cmd.Flags().Changed
	if changed("isbn") {
		p.ISBN = &f.isbn
	}
	if changed("title") {
		p.Title = &f.title
	}
	if changed("author") {
		p.Author = &f.author
	}
	if changed("category") {
		p.Category = &f.category
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("price") {
		p.Price = &f.price
	}
	if changed("total") {
		p.Total = &f.total
	}
	if changed("available") {
		p.Available = &f.available
	}
	if changed("active") {
		p.IsActive = &f.active
	}
	return p
}

func newAdminCmd(a *app) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage the inventory (administrators only)",
	}

	var add bookFlags
	addBook := &cobra.Command{
		Use:   "add-book",
		Short: "Add a title to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if add.title == "" {
				return errors.New("--title is required")
			}
			u, err := a.signInAdmin()
			if err != nil {
				return err
			}
			b, err := a.mgr.Books.Add(library.NewBook{
				ISBN:        add.isbn,
				Title:       add.title,
				Author:      add.author,
				Category:    add.category,
				Description: add.description,
				Price:       add.price,
				Total:       add.total,
			}, u)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added book ID %d\n", b.ID)
			return nil
		},
	}
	add.bind(addBook, false)

	var upd bookFlags
	update := &cobra.Command{
		Use:   "update <book-id>",
		Short: "Change the fields given as flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := a.signInAdmin()
			if err != nil {
				return err
			}
			b, err := a.mgr.Books.Update(id, upd.patch(cmd), u)
			if err != nil {
				return err
			}
			printBooks(a.out, []library.Book{b})
			return nil
		},
	}
	upd.bind(update, true)

	remove := &cobra.Command{
		Use:   "remove <book-id>",
		Short: "Take a title out of the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := a.signInAdmin()
			if err != nil {
				return err
			}
			if err := a.mgr.Books.Remove(id, u); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Book %d removed\n", id)
			return nil
		},
	}

	stock := &cobra.Command{
		Use:   "stock <book-id> <qty>",
		Short: "Buy in more copies",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: %s", library.ErrInvalidQuantity, args[1])
			}
			u, err := a.signIn()
			if err != nil {
				return err
			}
			if err := a.mgr.Purchases.AddStock(id, u, qty); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added %d copies to book %d\n", qty, id)
			return nil
		},
	}

	admin.AddCommand(addBook, update, remove, stock)
	return admin
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Wipe all data and restore the demo catalog",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if _, err := a.signInAdmin(); err != nil {
				return err
			}
			if err := a.mgr.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Demo data restored.")
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var addr string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the keys changed by other processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				addr = a.cfg.MetricsAddr
			}
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.WatchInterval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			unsubscribe := a.mgr.OnChange(func(key string) {
				if key == "" {
					key = "*"
				}
				fmt.Fprintf(a.out, "%s changed %s\n", time.Now().Format("15:04:05"), key)
			})
			defer unsubscribe()

			if addr != "" {
				srv := &http.Server{Addr: addr, Handler: metricsHandler(a)}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.log.Info().Str("addr", addr).Msg("serving /metrics")
			}

			a.log.Info().Str("path", a.cfg.DBPath).Dur("interval", interval).Msg("watching for changes")
			return a.mgr.Watch(ctx, interval)
		},
	}
	cmd.Flags().StringVar(&addr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval")
	return cmd
}

func metricsHandler(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	return mux
}
