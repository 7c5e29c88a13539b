package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Legacy layout (naive UNIQUE constraint, NULL-distinct)
// 1 - Coalesced natural-key unique index
const currentSchemaVersion = 1

// DefaultBusyTimeout bounds how long a write waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Settings keys.
const (
	SettingOriginID         = "origin_id"
	SettingOriginalHostname = "original_hostname"
)

// Store is a handle on one history database file.
type Store struct {
	db   *sql.DB
	path string
}

type options struct {
	busyTimeout time.Duration
	hostname    string
}

// Option configures Open.
type Option func(*options)

// WithBusyTimeout sets the lock wait window. Zero keeps the default.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithHostname sets the hostname recorded as original_hostname when the store
// is created.
func WithHostname(name string) Option {
	return func(o *options) {
		o.hostname = name
	}
}

// Open creates or opens the history database at path.
//
// Missing parent directories and schema are created. A legacy store is
// migrated before Open returns. A newly created store gets a fresh origin_id.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "create directory", Path: path, Err: err}
		}
	}

	dsn, err := fileDSN(path, o.busyTimeout)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "connect", Path: path, Err: err}
	}

	// One connection: ATTACH and pragmas are per-connection state.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, &StorageError{Op: "apply pragmas", Path: path, Err: err}
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, &StorageError{Op: "apply schema", Path: path, Err: err}
	}

	s := &Store{db: db, path: path}
	if err := s.ensureOrigin(context.Background(), o.hostname); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// fileDSN builds a file: URI for path so that '?', '#' and '%' in the path
// stay part of the file name instead of starting the driver's parameters.
func fileDSN(path string, busyTimeout time.Duration) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: fmt.Sprintf("_txlock=immediate&_busy_timeout=%d", busyTimeout.Milliseconds()),
	}
	return u.String(), nil
}

// applyPragmas sets connection configuration not carried by the DSN.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema brings the database to currentSchemaVersion.
//
// The check, any legacy migration, and the schema run in one IMMEDIATE
// transaction so concurrent first opens serialize.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer tx.Rollback()

	// Another process may have finished while we waited for the lock.
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	migrated := false
	legacy, err := isLegacyLayout(tx)
	if err != nil {
		return err
	}
	if legacy {
		if err := migrateToV1(tx); err != nil {
			return err
		}
		migrated = true
	}

	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	if migrated {
		// Reclaim the pages of the dropped legacy table.
		if _, err := db.Exec("VACUUM"); err != nil {
			return fmt.Errorf("vacuum after migration: %w", err)
		}
	}

	return nil
}

// ensureOrigin records origin_id and original_hostname on first open.
func (s *Store) ensureOrigin(ctx context.Context, hostname string) error {
	if _, ok, err := s.Setting(ctx, SettingOriginID); err != nil || ok {
		return err
	}
	origin := uuid.Must(uuid.NewV7()).String()
	if err := s.setSettingIfAbsent(ctx, SettingOriginID, origin); err != nil {
		return err
	}
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	if hostname != "" {
		if err := s.setSettingIfAbsent(ctx, SettingOriginalHostname, hostname); err != nil {
			return err
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
