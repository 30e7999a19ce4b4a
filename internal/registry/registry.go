// Package registry holds the domain logic for device records and the
// alias index on top of the ephemeral keyed store.
//
// The registry owns no state of its own: every read re-fetches from the
// store and every write goes through it, so two connection handlers working
// on the same device coordinate purely through store state. Decisions that
// depend on a prior read (alias uniqueness, record liveness) run inside a
// single atomic store step; see TryAssignAlias.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/scanlink/host/internal/store"
)

// RecordTTL is how long a device record lives after its last state change.
// Every register, refresh, and alias assignment pushes expiry out again.
const RecordTTL = 2 * time.Hour

// Record is a snapshot of one device's state.
// Channel is empty when no connection is currently bound to the device.
// Alias is empty until the device has been paired.
type Record struct {
	DID       string
	Channel   string
	ExpiresAt time.Time
	Alias     string
}

// Registry provides create/refresh/read/clear operations for device records
// and maintains the bidirectional alias index.
// All methods are safe for concurrent use; the store is the only shared state.
type Registry struct {
	store store.Store

	// timeNow is swappable for tests that pin TTL arithmetic.
	timeNow func() time.Time
}

// NewRegistry creates a registry over the given store.
func NewRegistry(s store.Store) *Registry {
	return &Registry{
		store:   s,
		timeNow: time.Now,
	}
}

// SetTimeNow overrides the clock used for TTL computation. Tests only.
func (r *Registry) SetTimeNow(now func() time.Time) {
	r.timeNow = now
}

// RegisterOrRefresh creates or overwrites the device's record, binding the
// given channel handle and pushing expiry out to now+RecordTTL. It is
// idempotent and never fails for a syntactically valid id; callers validate
// the id before getting here.
//
// The groups placeholder key is kept alongside the record with the same
// expiry so it never outlives the device.
func (r *Registry) RegisterOrRefresh(ctx context.Context, deviceID, channel string) (Record, error) {
	expiresAt := r.timeNow().Add(RecordTTL)
	deviceKey := DeviceKey(deviceID)

	var alias string
	err := r.store.Atomic(ctx, func(tx store.Tx) error {
		fields := map[string]string{
			FieldDID:     deviceID,
			FieldChannel: channel,
			FieldTTL:     formatTTL(expiresAt),
		}
		if err := tx.Set(deviceKey, fields); err != nil {
			return err
		}
		if err := tx.ExpireAt(deviceKey, expiresAt); err != nil {
			return err
		}
		if err := tx.Set(GroupsKey(deviceID), map[string]string{FieldDID: deviceID}); err != nil {
			return err
		}
		if err := tx.ExpireAt(GroupsKey(deviceID), expiresAt); err != nil {
			return err
		}
		// A reconnecting device may already be paired; its snapshot should
		// say so.
		if a, ok, err := tx.Get(deviceAliasKey, deviceKey); err != nil {
			return err
		} else if ok {
			alias = a
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("register device %s: %w", deviceID, err)
	}

	return Record{DID: deviceID, Channel: channel, ExpiresAt: expiresAt, Alias: alias}, nil
}

// Read returns the current snapshot for a device, merging the record hash
// with the forward alias mapping. The boolean is false when the record is
// absent or expired.
//
// Read is a plain (non-atomic) pair of store calls: it only reports state,
// it never gates a mutation.
func (r *Registry) Read(ctx context.Context, deviceID string) (Record, bool, error) {
	deviceKey := DeviceKey(deviceID)

	fields, ok, err := r.store.GetAll(ctx, deviceKey)
	if err != nil {
		return Record{}, false, fmt.Errorf("read device %s: %w", deviceID, err)
	}
	if !ok {
		return Record{}, false, nil
	}

	rec := recordFromFields(deviceID, fields)

	if alias, ok, err := r.store.Get(ctx, deviceAliasKey, deviceKey); err != nil {
		return Record{}, false, fmt.Errorf("read alias for %s: %w", deviceID, err)
	} else if ok {
		rec.Alias = alias
	}

	return rec, true, nil
}

// IsPaired reports whether the alias index has a forward entry for the device.
func (r *Registry) IsPaired(ctx context.Context, deviceID string) (bool, error) {
	_, ok, err := r.store.Get(ctx, deviceAliasKey, DeviceKey(deviceID))
	if err != nil {
		return false, fmt.Errorf("check pairing for %s: %w", deviceID, err)
	}
	return ok, nil
}

// ClearConnection removes the device's channel binding on disconnect, plus
// the reverse alias entry pointing at it so a disconnected device can no
// longer be found by its alias.
//
// The forward device->alias entry is deliberately left in place: a device
// that reconnects before its record expires resumes its pairing. The
// resulting half-mapping until then is a known, accepted asymmetry.
func (r *Registry) ClearConnection(ctx context.Context, deviceID string) error {
	deviceKey := DeviceKey(deviceID)

	err := r.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.Delete(deviceKey, FieldChannel); err != nil {
			return err
		}
		alias, ok, err := tx.Get(deviceAliasKey, deviceKey)
		if err != nil {
			return err
		}
		if ok {
			return tx.Delete(aliasDeviceKey, alias)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear connection for %s: %w", deviceID, err)
	}
	return nil
}

func recordFromFields(deviceID string, fields map[string]string) Record {
	rec := Record{
		DID:     deviceID,
		Channel: fields[FieldChannel],
	}
	if ttl, err := strconv.ParseInt(fields[FieldTTL], 10, 64); err == nil {
		rec.ExpiresAt = time.Unix(ttl, 0)
	}
	return rec
}

func formatTTL(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
