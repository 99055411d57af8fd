package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/blockdoc/internal/mediacache"
	"github.com/roach88/blockdoc/internal/schema"
	"github.com/roach88/blockdoc/internal/trail"
)

// SQL driver names accepted in Options.Driver.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// DefaultDriver is used when Options.Driver is empty.
const DefaultDriver = DriverCGO

// Options configures a Store.
type Options struct {
	// Driver selects the SQLite driver: DriverCGO or DriverPure.
	Driver string

	// CacheBase is the media cache base directory. Empty means
	// mediacache.DefaultBase().
	CacheBase string

	// DisableCache skips media materialization on load.
	DisableCache bool

	Logger *slog.Logger
	Trail  *trail.Trail
}

// Store is an open document store.
type Store struct {
	db     *sql.DB
	path   string
	cache  *mediacache.Cache
	logger *slog.Logger
	trail  *trail.Trail
}

// Open opens or creates the SQLite document at path and applies the
// connection pragmas. The schema is ensured lazily by Load, Save and Migrate.
func Open(path string, opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	if driver != DriverCGO && driver != DriverPure {
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, and pragmas are per
	// connection, so pin everything to a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger, trail: opts.Trail}
	if !opts.DisableCache {
		base := opts.CacheBase
		if base == "" {
			base, err = mediacache.DefaultBase()
		}
		if err != nil {
			logger.Warn("media cache unavailable", "error", err)
		} else {
			s.cache = mediacache.ForDocument(base, path, logger)
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the document file path.
func (s *Store) Path() string {
	return s.path
}

// Cache returns the document's media cache, or nil when disabled.
func (s *Store) Cache() *mediacache.Cache {
	return s.cache
}

// Migrate brings the store up to the current schema in its own transaction.
func (s *Store) Migrate(ctx context.Context) (schema.Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.Result{}, fmt.Errorf("migrate: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := s.ensure(ctx, tx)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("migrate: commit: %w", err)
	}
	return res, nil
}

// Version reports the schema version recorded in the store.
func (s *Store) Version(ctx context.Context) (int, error) {
	return schema.Version(ctx, s.db)
}

func (s *Store) ensure(ctx context.Context, tx *sql.Tx) (schema.Result, error) {
	res, err := schema.Ensure(ctx, tx)
	if err != nil {
		return res, err
	}
	if res.Migrated() {
		s.logger.Info("schema migrated", "path", s.path, "from", res.From, "to", res.To)
		s.trail.Record("migrate %s v%d -> v%d", s.path, res.From, res.To)
	}
	if res.Dropped > 0 {
		s.logger.Warn("migration dropped rows of retired block types", "path", s.path, "rows", res.Dropped)
	}
	return res, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
