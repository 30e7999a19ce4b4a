package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	// SQLite driver - imported for side effects (registers the driver).
	// Using modernc.org/sqlite which is a pure-Go implementation that
	// doesn't require CGO, making cross-compilation and testing easier.
	"database/sql"

	"github.com/cenkalti/backoff"
	_ "modernc.org/sqlite"
)

// sqliteBusyRetries bounds how often an Atomic step is retried when SQLite
// reports the database as locked (another process holds the write lock).
// Each retry re-runs the whole step against fresh state, so retrying here
// never widens the atomicity window.
const sqliteBusyRetries = 5

// SQLiteStore implements Store on a SQLite database.
//
// Each key/field pair is a row; expiries live in their own table. Atomic maps
// to a database transaction, and every transaction starts by purging rows
// whose expiry has passed, so expired keys are indistinguishable from absent
// ones. The connection pool is capped at one connection, which both
// serializes writers and makes ":memory:" databases behave.
type SQLiteStore struct {
	db      *sql.DB
	timeNow func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("store: opening database at %s", path)

	// busy_timeout handles short cross-process contention before the
	// backoff retry loop has to get involved.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, timeNow: time.Now}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Printf("store: database ready")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fields (
		key   TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (key, field)
	);
	CREATE TABLE IF NOT EXISTS expiries (
		key        TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_expiries_at ON expiries(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SetTimeNow overrides the clock used for expiry checks. Tests only.
func (s *SQLiteStore) SetTimeNow(now func() time.Time) {
	s.timeNow = now
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("store: closing database")
	return s.db.Close()
}

// sqliteTx adapts a database transaction to the Tx interface.
type sqliteTx struct {
	tx *sql.Tx
}

func (t sqliteTx) Set(key string, fields map[string]string) error {
	for field, value := range fields {
		_, err := t.tx.Exec(
			`INSERT INTO fields (key, field, value) VALUES (?, ?, ?)
			 ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`,
			key, field, value,
		)
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", key, field, err)
		}
	}
	return nil
}

func (t sqliteTx) Get(key, field string) (string, bool, error) {
	var value string
	err := t.tx.QueryRow(
		`SELECT value FROM fields WHERE key = ? AND field = ?`,
		key, field,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", key, field, err)
	}
	return value, true, nil
}

func (t sqliteTx) GetAll(key string) (map[string]string, bool, error) {
	rows, err := t.tx.Query(`SELECT field, value FROM fields WHERE key = ?`, key)
	if err != nil {
		return nil, false, fmt.Errorf("getall %s: %w", key, err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, false, fmt.Errorf("getall %s: %w", key, err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("getall %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

func (t sqliteTx) Delete(key string, fields ...string) error {
	if len(fields) == 0 {
		if _, err := t.tx.Exec(`DELETE FROM fields WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		if _, err := t.tx.Exec(`DELETE FROM expiries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}
	for _, field := range fields {
		if _, err := t.tx.Exec(`DELETE FROM fields WHERE key = ? AND field = ?`, key, field); err != nil {
			return fmt.Errorf("delete %s/%s: %w", key, field, err)
		}
	}
	return nil
}

func (t sqliteTx) ExpireAt(key string, at time.Time) error {
	// No-op for absent keys, matching the contract.
	var exists int
	err := t.tx.QueryRow(`SELECT 1 FROM fields WHERE key = ? LIMIT 1`, key).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("expireat %s: %w", key, err)
	}
	_, err = t.tx.Exec(
		`INSERT INTO expiries (key, expires_at) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET expires_at = excluded.expires_at`,
		key, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("expireat %s: %w", key, err)
	}
	return nil
}

// Atomic runs fn inside a database transaction, retrying with exponential
// backoff when another process holds the write lock. An error from fn rolls
// the transaction back and is returned unchanged.
func (s *SQLiteStore) Atomic(ctx context.Context, fn func(Tx) error) error {
	op := func() error {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), sqliteBusyRetries),
		ctx,
	)
	return backoff.Retry(op, policy)
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	// Enforce expiry up front so everything fn reads is live.
	now := s.timeNow().UnixMilli()
	if _, err := tx.Exec(
		`DELETE FROM fields WHERE key IN (SELECT key FROM expiries WHERE expires_at <= ?)`, now,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("purge expired: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM expiries WHERE expires_at <= ?`, now); err != nil {
		tx.Rollback()
		return fmt.Errorf("purge expired: %w", err)
	}

	if err := fn(sqliteTx{tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isBusy reports whether err is SQLite's lock-contention error.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Set merges fields into key. See Tx.Set.
func (s *SQLiteStore) Set(ctx context.Context, key string, fields map[string]string) error {
	return s.Atomic(ctx, func(tx Tx) error { return tx.Set(key, fields) })
}

// Get returns a single field value. See Tx.Get.
func (s *SQLiteStore) Get(ctx context.Context, key, field string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := s.Atomic(ctx, func(tx Tx) error {
		var err error
		v, ok, err = tx.Get(key, field)
		return err
	})
	return v, ok, err
}

// GetAll returns the full field map at key. See Tx.GetAll.
func (s *SQLiteStore) GetAll(ctx context.Context, key string) (map[string]string, bool, error) {
	var (
		fields map[string]string
		ok     bool
	)
	err := s.Atomic(ctx, func(tx Tx) error {
		var err error
		fields, ok, err = tx.GetAll(key)
		return err
	})
	return fields, ok, err
}

// Delete removes fields or the whole key. See Tx.Delete.
func (s *SQLiteStore) Delete(ctx context.Context, key string, fields ...string) error {
	return s.Atomic(ctx, func(tx Tx) error { return tx.Delete(key, fields...) })
}

// ExpireAt sets the key's absolute expiry. See Tx.ExpireAt.
func (s *SQLiteStore) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return s.Atomic(ctx, func(tx Tx) error { return tx.ExpireAt(key, at) })
}
