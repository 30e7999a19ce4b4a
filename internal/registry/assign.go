package registry

import (
	"context"
	"fmt"

	"github.com/scanlink/host/internal/store"
)

// Reason identifies why an alias assignment was rejected.
type Reason string

const (
	// ReasonAliasTaken means the alias already belongs to a different device.
	ReasonAliasTaken Reason = "alias_taken"

	// ReasonDeviceExpired means the device record vanished before the
	// transaction ran (TTL elapsed or record deleted).
	ReasonDeviceExpired Reason = "device_expired"
)

// AssignResult reports the outcome of TryAssignAlias.
// Record is only populated when Accepted is true.
type AssignResult struct {
	Accepted bool
	Reason   Reason
	Record   Record
}

// TryAssignAlias claims candidate as the alias for the device.
//
// The whole decision runs as one atomic store step, which is what makes two
// connections racing on the same alias (or the same device being aliased
// twice at the same instant) safe:
//
//  1. reject ReasonAliasTaken if the reverse index maps candidate to a
//     different device,
//  2. reject ReasonDeviceExpired if the device record is gone,
//  3. drop the reverse entry for the device's previous alias, if any,
//  4. write both index directions,
//  5. refresh the record TTL and re-apply store expiry to the device key and
//     both index keys.
//
// The candidate must already have passed syntax validation and normalization
// (see the alias package); this function assumes it is well-formed.
func (r *Registry) TryAssignAlias(ctx context.Context, deviceID, candidate string) (AssignResult, error) {
	deviceKey := DeviceKey(deviceID)
	expiresAt := r.timeNow().Add(RecordTTL)

	var result AssignResult
	err := r.store.Atomic(ctx, func(tx store.Tx) error {
		owner, taken, err := tx.Get(aliasDeviceKey, candidate)
		if err != nil {
			return err
		}
		if taken && owner != deviceKey {
			result = AssignResult{Reason: ReasonAliasTaken}
			return nil
		}

		fields, live, err := tx.GetAll(deviceKey)
		if err != nil {
			return err
		}
		if !live {
			result = AssignResult{Reason: ReasonDeviceExpired}
			return nil
		}

		// Re-aliasing: the previous reverse entry must not keep pointing at
		// this device once the forward mapping is overwritten.
		if prev, had, err := tx.Get(deviceAliasKey, deviceKey); err != nil {
			return err
		} else if had && prev != candidate {
			if err := tx.Delete(aliasDeviceKey, prev); err != nil {
				return err
			}
		}

		if err := tx.Set(deviceAliasKey, map[string]string{deviceKey: candidate}); err != nil {
			return err
		}
		if err := tx.Set(aliasDeviceKey, map[string]string{candidate: deviceKey}); err != nil {
			return err
		}

		if err := tx.Set(deviceKey, map[string]string{FieldTTL: formatTTL(expiresAt)}); err != nil {
			return err
		}
		for _, key := range []string{deviceKey, deviceAliasKey, aliasDeviceKey} {
			if err := tx.ExpireAt(key, expiresAt); err != nil {
				return err
			}
		}

		rec := recordFromFields(deviceID, fields)
		rec.ExpiresAt = expiresAt
		rec.Alias = candidate
		result = AssignResult{Accepted: true, Record: rec}
		return nil
	})
	if err != nil {
		return AssignResult{}, fmt.Errorf("assign alias %q to %s: %w", candidate, deviceID, err)
	}

	return result, nil
}
