package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"library-catalog/internal/config"
	"library-catalog/internal/logger"
	"library-catalog/library"
	"library-catalog/storage"
)

// app carries what every command needs once the root command has run.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	reg *prometheus.Registry
	mgr *library.LibraryManager
	in  *prompter
	out io.Writer

	email string
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var dbPath, driver, level string

	root := &cobra.Command{
		Use:           "library",
		Short:         "Library catalog: books, loans, purchases and carts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("driver") {
				cfg.Driver = driver
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = level
			}
			return a.open(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "library.db", "database file")
	root.PersistentFlags().StringVar(&driver, "driver", storage.DriverSQLite3, "sql driver (sqlite3 or sqlite)")
	root.PersistentFlags().StringVar(&level, "log-level", "info", "log level")
	root.PersistentFlags().StringVar(&a.email, "email", "", "sign in as this user")

	root.AddCommand(
		newShellCmd(a),
		newBooksCmd(a),
		newBorrowCmd(a),
		newReturnCmd(a),
		newBuyCmd(a),
		newLoansCmd(a),
		newHistoryCmd(a),
		newAdminCmd(a),
		newResetCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) open(cfg *config.Config, in io.Reader, out, errOut io.Writer) error {
	a.cfg = cfg
	a.log = logger.New(cfg.LogLevel, cfg.LogPretty, errOut)
	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.in = newPrompter(in, out)
	a.out = out

	mgr, err := library.OpenLibraryManager(cfg.DBPath,
		library.WithLogger(a.log),
		library.WithPasswordCost(cfg.PasswordCost),
		library.WithStorageOptions(
			storage.WithDriver(cfg.Driver),
			storage.WithRegisterer(a.reg),
		),
	)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	a.mgr = mgr
	a.log.Debug().Str("path", cfg.DBPath).Str("driver", cfg.Driver).Msg("library opened")
	return nil
}

// close releases the manager opened by the root command, if any.
func (a *app) close() error {
	if a.mgr == nil {
		return nil
	}
	err := a.mgr.Close()
	a.mgr = nil
	return err
}

// signIn logs in as --email, prompting for the password.
func (a *app) signIn() (library.User, error) {
	if a.email == "" {
		return library.User{}, fmt.Errorf("--email is required")
	}
	password, err := a.in.password(fmt.Sprintf("Password for %s: ", a.email))
	if err != nil {
		return library.User{}, fmt.Errorf("failed to read password: %w", err)
	}
	return a.mgr.Sessions.Login(a.email, password)
}

// signInAdmin is signIn restricted to administrators.
func (a *app) signInAdmin() (library.User, error) {
	u, err := a.signIn()
	if err != nil {
		return u, err
	}
	if !u.IsAdmin() {
		return library.User{}, fmt.Errorf("%w: %s is not an administrator", library.ErrAuthorization, u.Email)
	}
	return u, nil
}
