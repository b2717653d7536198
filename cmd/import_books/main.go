package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-catalog/internal/config"
	"library-catalog/internal/logger"
	"library-catalog/library"
	"library-catalog/storage"
)

// record is one entry of the import file.
type record struct {
	ISBN        string  `json:"isbn"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Total       int     `json:"total"`
}

func main() {
	var (
		email string
		fresh bool
	)
	cmd := &cobra.Command{
		Use:          "import_books <books.json>",
		Short:        "Add every book of a JSON file to the catalog",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if fresh {
				removeDatabase(cmd.OutOrStdout(), cfg.DBPath)
			}
			return run(cmd.OutOrStdout(), cfg, args[0], email)
		},
	}
	cmd.Flags().StringVar(&email, "email", library.AdminEmail, "administrator to import as")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "delete the existing database first")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// removeDatabase deletes the database file and its WAL companions.
func removeDatabase(out io.Writer, path string) {
	fmt.Fprintln(out, "Cleaning up existing database files...")
	for _, file := range []string{path, path + "-shm", path + "-wal"} {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(out, "Warning: Could not remove %s: %v\n", file, err)
		}
	}
}

func readRecords(path string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []record
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

func readPassword(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		var s string
		_, err := fmt.Fscanln(os.Stdin, &s)
		return s, err
	}
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	return strings.TrimSpace(string(b)), err
}

func run(out io.Writer, cfg *config.Config, file, email string) error {
	log := logger.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	records, err := readRecords(file)
	if err != nil {
		return err
	}

	mgr, err := library.OpenLibraryManager(cfg.DBPath,
		library.WithLogger(log),
		library.WithPasswordCost(cfg.PasswordCost),
		library.WithStorageOptions(storage.WithDriver(cfg.Driver)),
	)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	defer mgr.Close()

	password, err := readPassword(out, fmt.Sprintf("Password for %s: ", email))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	admin, err := mgr.Sessions.Login(email, password)
	if err != nil {
		return err
	}
	if !admin.IsAdmin() {
		return fmt.Errorf("%w: %s is not an administrator", library.ErrAuthorization, email)
	}

	fmt.Fprintf(out, "Importing %d book(s) from %s...\n", len(records), file)
	var errs []error
	successCount := 0
	for _, r := range records {
		fmt.Fprintf(out, "Importing: %s by %s... ", r.Title, r.Author)
		if r.Title == "" {
			fmt.Fprintln(out, "ERROR - missing title")
			errs = append(errs, errors.New("record without title"))
			continue
		}
		b, err := mgr.Books.Add(library.NewBook{
			ISBN:        r.ISBN,
			Title:       r.Title,
			Author:      r.Author,
			Category:    r.Category,
			Description: r.Description,
			Price:       r.Price,
			Total:       r.Total,
		}, admin)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Title, err))
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", b.ID)
		successCount++
	}

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d books\n", successCount)
	fmt.Fprintf(out, "Errors: %d\n", len(errs))
	log.Info().Int("imported", successCount).Int("failed", len(errs)).Str("file", file).Msg("import finished")
	return errors.Join(errs...)
}
