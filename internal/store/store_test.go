package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Interface compliance checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// clock is a controllable time source shared by the conformance tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// forEachStore runs the same test against both implementations so the
// in-memory fake cannot drift from the durable backend.
func forEachStore(t *testing.T, test func(t *testing.T, s Store, clk *clock)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		clk := newClock()
		s := NewMemoryStore()
		s.SetTimeNow(clk.Now)
		defer s.Close()
		test(t, s, clk)
	})

	t.Run("sqlite", func(t *testing.T) {
		clk := newClock()
		s, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		s.SetTimeNow(clk.Now)
		defer s.Close()
		test(t, s, clk)
	})
}

func TestSetGetRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		if err := s.Set(ctx, "device:abc", map[string]string{"did": "abc", "channel": "ch-1"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		v, ok, err := s.Get(ctx, "device:abc", "channel")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !ok || v != "ch-1" {
			t.Errorf("Get = (%q, %v), want (ch-1, true)", v, ok)
		}
	})
}

func TestAbsenceIsNotAnError(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		if _, ok, err := s.Get(ctx, "nope", "field"); err != nil || ok {
			t.Errorf("Get on absent key = (ok=%v, err=%v), want (false, nil)", ok, err)
		}
		if _, ok, err := s.GetAll(ctx, "nope"); err != nil || ok {
			t.Errorf("GetAll on absent key = (ok=%v, err=%v), want (false, nil)", ok, err)
		}
		if err := s.Delete(ctx, "nope", "field"); err != nil {
			t.Errorf("Delete on absent key failed: %v", err)
		}
		if err := s.ExpireAt(ctx, "nope", time.Now()); err != nil {
			t.Errorf("ExpireAt on absent key failed: %v", err)
		}
	})
}

func TestSetMergesFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		s.Set(ctx, "k", map[string]string{"a": "1", "b": "2"})
		s.Set(ctx, "k", map[string]string{"b": "3", "c": "4"})

		fields, ok, err := s.GetAll(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("GetAll = (ok=%v, err=%v)", ok, err)
		}
		want := map[string]string{"a": "1", "b": "3", "c": "4"}
		if len(fields) != len(want) {
			t.Fatalf("GetAll = %v, want %v", fields, want)
		}
		for k, v := range want {
			if fields[k] != v {
				t.Errorf("field %s = %q, want %q", k, fields[k], v)
			}
		}
	})
}

func TestDeleteField(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		s.Set(ctx, "k", map[string]string{"a": "1", "b": "2"})
		if err := s.Delete(ctx, "k", "a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if _, ok, _ := s.Get(ctx, "k", "a"); ok {
			t.Error("field a still present after Delete")
		}
		if v, ok, _ := s.Get(ctx, "k", "b"); !ok || v != "2" {
			t.Errorf("field b = (%q, %v), want (2, true)", v, ok)
		}
	})
}

func TestDeleteWholeKey(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		s.Set(ctx, "k", map[string]string{"a": "1"})
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, ok, _ := s.GetAll(ctx, "k"); ok {
			t.Error("key still present after whole-key Delete")
		}
	})
}

func TestExpiryMakesKeyAbsent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		s.Set(ctx, "k", map[string]string{"a": "1"})
		if err := s.ExpireAt(ctx, "k", clk.Now().Add(time.Hour)); err != nil {
			t.Fatalf("ExpireAt failed: %v", err)
		}

		// Before expiry the key is visible.
		if _, ok, _ := s.GetAll(ctx, "k"); !ok {
			t.Fatal("key absent before expiry")
		}

		clk.Advance(time.Hour + time.Second)

		if _, ok, err := s.GetAll(ctx, "k"); err != nil || ok {
			t.Errorf("GetAll after expiry = (ok=%v, err=%v), want (false, nil)", ok, err)
		}
		if _, ok, _ := s.Get(ctx, "k", "a"); ok {
			t.Error("field visible after expiry")
		}
	})
}

func TestExpiryCanBeExtended(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		s.Set(ctx, "k", map[string]string{"a": "1"})
		s.ExpireAt(ctx, "k", clk.Now().Add(time.Hour))

		clk.Advance(30 * time.Minute)
		s.ExpireAt(ctx, "k", clk.Now().Add(2*time.Hour))

		clk.Advance(time.Hour) // past the original expiry
		if _, ok, _ := s.GetAll(ctx, "k"); !ok {
			t.Error("key expired despite extended expiry")
		}
	})
}

func TestAtomicReadsAndWritesAreOneStep(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()

		s.Set(ctx, "counter", map[string]string{"n": "0"})

		// Concurrent read-modify-write cycles: with a correct Atomic
		// implementation no increment is lost.
		const workers, rounds = 8, 20
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					err := s.Atomic(ctx, func(tx Tx) error {
						v, _, err := tx.Get("counter", "n")
						if err != nil {
							return err
						}
						n, _ := strconv.Atoi(v)
						return tx.Set("counter", map[string]string{"n": strconv.Itoa(n + 1)})
					})
					if err != nil {
						t.Errorf("Atomic failed: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()

		v, _, _ := s.Get(ctx, "counter", "n")
		if v != strconv.Itoa(workers*rounds) {
			t.Errorf("counter = %s, want %d", v, workers*rounds)
		}
	})
}

func TestAtomicErrorPropagates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clk *clock) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.Atomic(ctx, func(tx Tx) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("Atomic returned %v, want %v", err, boom)
		}
	})
}

func TestSQLiteAtomicRollsBackOnError(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	err = s.Atomic(ctx, func(tx Tx) error {
		if err := tx.Set("k", map[string]string{"a": "1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic returned %v, want %v", err, boom)
	}

	if _, ok, _ := s.GetAll(ctx, "k"); ok {
		t.Error("writes from a failed step are visible")
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()

	if err := s.Set(context.Background(), "k", map[string]string{"a": "1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
}
