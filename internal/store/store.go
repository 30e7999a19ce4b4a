// Package store provides the ephemeral keyed store the host keeps all of its
// state in.
//
// The model is a set of keys, each holding a map of string fields, with an
// optional absolute expiry per key. Absence of a key or a field is a normal
// result, not an error: Get and GetAll report it through their boolean
// return, never through err.
//
// Atomic is the only synchronization primitive the rest of the host uses.
// Connection handlers run concurrently and share nothing in-process, so any
// check-then-act sequence (alias availability, pairing eligibility) must run
// inside a single Atomic step to be race-free. Plain reads are fine for
// reporting that follows a committed mutation.
//
// Two implementations exist: MemoryStore (mutex-guarded map, used in tests
// and when running without a database path) and SQLiteStore (durable,
// transaction-backed).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store is closed")

// Tx exposes the store operations available inside an atomic step.
// Implementations guarantee that all reads and writes performed through a Tx
// become visible to concurrent callers as one indivisible unit.
type Tx interface {
	// Set merges fields into the map stored at key, creating the key if it
	// does not exist. Existing fields not named in fields are left alone.
	Set(key string, fields map[string]string) error

	// Get returns the value of a single field. The boolean is false when the
	// key or the field is absent (including after expiry).
	Get(key, field string) (value string, ok bool, err error)

	// GetAll returns a copy of the full field map at key. The boolean is
	// false when the key is absent.
	GetAll(key string) (fields map[string]string, ok bool, err error)

	// Delete removes the named fields from key. With no fields it removes
	// the key entirely. Deleting an absent key or field is a no-op.
	Delete(key string, fields ...string) error

	// ExpireAt sets the absolute expiry for key. Once the instant passes the
	// key behaves as absent. Calling it on an absent key is a no-op.
	ExpireAt(key string, at time.Time) error
}

// Store is the full contract consumed by the registry and the relay.
// The non-transactional methods mirror Tx with a context for the round trip.
type Store interface {
	Set(ctx context.Context, key string, fields map[string]string) error
	Get(ctx context.Context, key, field string) (value string, ok bool, err error)
	GetAll(ctx context.Context, key string) (fields map[string]string, ok bool, err error)
	Delete(ctx context.Context, key string, fields ...string) error
	ExpireAt(ctx context.Context, key string, at time.Time) error

	// Atomic runs fn as one indivisible step. If fn returns an error the
	// step's writes are discarded and the error is returned unchanged.
	// Concurrent callers never observe a partially applied step.
	Atomic(ctx context.Context, fn func(Tx) error) error

	// Close releases the store's resources.
	Close() error
}
