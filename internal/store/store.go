// Package store is the durable, partitioned cache. Entries survive restarts,
// carry an absolute expiry, and are always re-derivable from source data, so
// any failure here is treated by callers as a miss.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Partition is a named namespace inside the cache. Partition names are part
// of the on-disk layout.
type Partition string

const (
	Articles   Partition = "articles"
	Categories Partition = "categories"
	Searches   Partition = "searches"
	Filters    Partition = "filters"
	Metadata   Partition = "metadata"
	Images     Partition = "images"
)

// Partitions lists every partition in schema order.
var Partitions = []Partition{Articles, Categories, Searches, Filters, Metadata, Images}

// DefaultTTL is applied when Set is called without WithTTL.
const DefaultTTL = 24 * time.Hour

// SchemaVersion is stamped on entries written without WithVersion.
const SchemaVersion = 1

// Valid reports whether p is one of the fixed partitions.
func (p Partition) Valid() bool {
	for _, known := range Partitions {
		if p == known {
			return true
		}
	}
	return false
}

// Store wraps the SQLite file holding cache entries. The database is opened
// lazily by Init, which every operation calls.
type Store struct {
	path       string
	defaultTTL time.Duration
	now        func() time.Time

	mu   sync.Mutex
	conn *sql.DB

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultTTL overrides the TTL used when Set is called without WithTTL.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultTTL = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a store backed by the SQLite file at dbPath. Nothing is opened
// until the first operation or an explicit Init.
func New(dbPath string, opts ...Option) *Store {
	s := &Store{
		path:       dbPath,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a store and initializes it immediately.
func Open(dbPath string, opts ...Option) (*Store, error) {
	s := New(dbPath, opts...)
	if _, err := s.db(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init opens the database and applies migrations. It is safe to call any
// number of times from any number of goroutines; the file is opened once.
// A failed Init leaves the store closed so a later call can retry.
func (s *Store) Init() error {
	_, err := s.db()
	return err
}

func (s *Store) db() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement
	// and serializes writers instead of surfacing SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	s.conn = conn
	return conn, nil
}

// Close closes the database connection if it was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
