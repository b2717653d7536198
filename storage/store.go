// Package storage is the durable key/value medium the library collections
// live in. Every key holds one JSON document, every write also refreshes a
// shadow backup copy, and every committed change is broadcast to in-process
// listeners and recorded in a change feed other processes can poll.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const (
	// DriverSQLite3 is the cgo driver from github.com/mattn/go-sqlite3.
	DriverSQLite3 = "sqlite3"
	// DriverSQLite is the pure Go driver from modernc.org/sqlite.
	DriverSQLite = "sqlite"

	// AllKeys is delivered to listeners when the whole store was cleared.
	AllKeys = ""

	backupPrefix = "backup:"
)

// ErrCorrupt marks a stored payload that could not be decoded or failed
// validation. It never escapes Load/Get; it only shows up in logs.
var ErrCorrupt = errors.New("storage: corrupt payload")

// Listener receives the key that changed, or AllKeys after Clear.
type Listener func(key string)

// Store is a SQLite-backed key/value store with backup copies and change
// notification.
type Store struct {
	db      *sqlx.DB
	path    string
	origin  string
	log     zerolog.Logger
	metrics *metrics

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int

	pollMu  sync.Mutex
	lastSeq int64
}

type options struct {
	driver string
	log    zerolog.Logger
	reg    prometheus.Registerer
}

// Option configures a Store.
type Option func(*options)

// WithDriver selects the database/sql driver (DriverSQLite3 or DriverSQLite).
func WithDriver(name string) Option {
	return func(o *options) { o.driver = name }
}

// WithLogger sets the logger used for corruption and recovery reports.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRegisterer registers the store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

func buildOptions(opts []Option) (options, error) {
	o := options{driver: DriverSQLite3, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	switch o.driver {
	case DriverSQLite3, DriverSQLite:
	default:
		return o, fmt.Errorf("storage: unknown driver %q", o.driver)
	}
	return o, nil
}

// Open opens (or creates) the store file at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return open(path, fileDSN(o.driver, path), o)
}

// OpenMemory opens a private in-memory store. Its contents are gone once
// the store is closed or the process exits.
func OpenMemory(opts ...Option) (*Store, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	name := uuid.NewString()
	return open(":memory:", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), o)
}

func fileDSN(driver, path string) string {
	if driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", path)
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", path)
}

func open(path, dsn string, o options) (*Store, error) {
	db, err := sqlx.Open(o.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection per store: SQLite serialises writers anyway and an
	// in-memory database only lives as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		path:      path,
		origin:    uuid.NewString(),
		log:       o.log.With().Str("component", "storage").Logger(),
		metrics:   newMetrics(o.reg),
		listeners: map[int]Listener{},
	}
	if err := db.Get(&s.lastSeq, `SELECT COALESCE(MAX(seq), 0) FROM changes`); err != nil {
		db.Close()
		return nil, fmt.Errorf("read change feed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database path (":memory:" for in-memory stores).
func (s *Store) Path() string { return s.path }

// Origin identifies this store instance in the change feed.
func (s *Store) Origin() string { return s.origin }

// BackupKey returns the shadow key holding the backup copy of key.
func BackupKey(key string) string { return backupPrefix + key }

// Load decodes the value stored under key into dst, which must be a non-nil
// pointer. It reports false when nothing usable is stored; unreadable data
// is recovered from the backup copy or erased, never returned as an error.
func (s *Store) Load(key string, dst any) bool {
	if err := checkTarget(dst); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("load rejected")
		return false
	}

	// Fast path: a healthy primary copy needs no write transaction.
	var raw []byte
	if err := s.db.Get(&raw, `SELECT value FROM kv WHERE key = ?`, key); err == nil {
		if decode(raw, dst) == nil {
			return true
		}
	}

	var found bool
	if err := s.Update(func(tx *Tx) error {
		found = tx.Load(key, dst)
		return nil
	}); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("load failed")
		return false
	}
	return found
}

// Set stores value under key and refreshes its backup copy.
func (s *Store) Set(key string, value any) error {
	return s.Update(func(tx *Tx) error { return tx.Set(key, value) })
}

// Remove deletes key and its backup copy.
func (s *Store) Remove(key string) error {
	return s.Update(func(tx *Tx) error { return tx.Remove(key) })
}

// Clear erases every key. Listeners receive AllKeys.
func (s *Store) Clear() error {
	return s.Update(func(tx *Tx) error { return tx.Clear() })
}

// Update runs fn inside one transaction. Keys written by fn are committed
// together and listeners are notified only after the commit succeeded, in
// the order the keys were first touched. If fn returns an error nothing is
// written and nobody is notified.
func (s *Store) Update(fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &Tx{tx: sqlTx, store: s}
	if err = fn(tx); err != nil {
		return err
	}
	if err = recordChanges(sqlTx, s.origin, tx.touched); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		s.log.Error().Err(err).Strs("keys", tx.touched).Msg("commit failed")
		return fmt.Errorf("commit: %w", err)
	}
	for _, key := range tx.touched {
		s.metrics.writes.WithLabelValues(metricKey(key)).Inc()
	}
	s.notify(sourceLocal, tx.touched...)
	return nil
}

// OnChange registers l for every committed change, local or remote. The
// returned function unregisters it.
func (s *Store) OnChange(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(source string, keys ...string) {
	if len(keys) == 0 {
		return
	}
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.metrics.notifications.WithLabelValues(source).Inc()
		for _, l := range ls {
			l(key)
		}
	}
}

// Reader is anything that can Load a key: a Store or a Tx.
type Reader interface {
	Load(key string, dst any) bool
}

// Get returns the value stored under key, or fallback when the key is
// missing or its payload is unusable.
func Get[T any](r Reader, key string, fallback T) T {
	var v T
	if r.Load(key, &v) {
		return v
	}
	return fallback
}
