package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
//
// A single mutex guards the whole map, which makes Atomic trivial: the lock
// is held for the duration of the step, so nothing can interleave. Expiry is
// enforced lazily - an expired key is purged the next time any operation
// touches it - which matches the contract that a key simply behaves as
// absent once its expiry passes.
type MemoryStore struct {
	mu     sync.Mutex
	keys   map[string]*memEntry
	closed bool

	// timeNow is swappable for tests that need to step the clock.
	timeNow func() time.Time
}

type memEntry struct {
	fields    map[string]string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:    make(map[string]*memEntry),
		timeNow: time.Now,
	}
}

// SetTimeNow overrides the clock used for expiry checks. Tests only.
func (m *MemoryStore) SetTimeNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeNow = now
}

// live returns the entry at key, purging it first if it has expired.
// Callers must hold m.mu.
func (m *MemoryStore) live(key string) *memEntry {
	e, ok := m.keys[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.timeNow().Before(e.expiresAt) {
		delete(m.keys, key)
		return nil
	}
	return e
}

// memTx operates on the store with the lock already held by Atomic.
type memTx struct {
	m *MemoryStore
}

func (tx memTx) Set(key string, fields map[string]string) error {
	e := tx.m.live(key)
	if e == nil {
		e = &memEntry{fields: make(map[string]string, len(fields))}
		tx.m.keys[key] = e
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	return nil
}

func (tx memTx) Get(key, field string) (string, bool, error) {
	e := tx.m.live(key)
	if e == nil {
		return "", false, nil
	}
	v, ok := e.fields[field]
	return v, ok, nil
}

func (tx memTx) GetAll(key string) (map[string]string, bool, error) {
	e := tx.m.live(key)
	if e == nil {
		return nil, false, nil
	}
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out, true, nil
}

func (tx memTx) Delete(key string, fields ...string) error {
	e := tx.m.live(key)
	if e == nil {
		return nil
	}
	if len(fields) == 0 {
		delete(tx.m.keys, key)
		return nil
	}
	for _, f := range fields {
		delete(e.fields, f)
	}
	return nil
}

func (tx memTx) ExpireAt(key string, at time.Time) error {
	e := tx.m.live(key)
	if e == nil {
		return nil
	}
	e.expiresAt = at
	return nil
}

// Atomic runs fn under the store lock.
//
// MemoryStore has no rollback: a step that writes and then fails leaves its
// writes in place. The registry only writes after its checks pass, so this
// difference from SQLiteStore is not observable through the host's own
// transactions; tests that need rollback semantics use SQLiteStore.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return fn(memTx{m})
}

// Set merges fields into key. See Tx.Set.
func (m *MemoryStore) Set(ctx context.Context, key string, fields map[string]string) error {
	return m.Atomic(ctx, func(tx Tx) error { return tx.Set(key, fields) })
}

// Get returns a single field value. See Tx.Get.
func (m *MemoryStore) Get(ctx context.Context, key, field string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := m.Atomic(ctx, func(tx Tx) error {
		var err error
		v, ok, err = tx.Get(key, field)
		return err
	})
	return v, ok, err
}

// GetAll returns a copy of the field map at key. See Tx.GetAll.
func (m *MemoryStore) GetAll(ctx context.Context, key string) (map[string]string, bool, error) {
	var (
		fields map[string]string
		ok     bool
	)
	err := m.Atomic(ctx, func(tx Tx) error {
		var err error
		fields, ok, err = tx.GetAll(key)
		return err
	})
	return fields, ok, err
}

// Delete removes fields or the whole key. See Tx.Delete.
func (m *MemoryStore) Delete(ctx context.Context, key string, fields ...string) error {
	return m.Atomic(ctx, func(tx Tx) error { return tx.Delete(key, fields...) })
}

// ExpireAt sets the key's absolute expiry. See Tx.ExpireAt.
func (m *MemoryStore) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return m.Atomic(ctx, func(tx Tx) error { return tx.ExpireAt(key, at) })
}

// Close marks the store closed. Subsequent operations return ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.keys = nil
	return nil
}
