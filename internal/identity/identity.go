// Package identity validates the opaque device identifiers clients claim.
//
// A device identifier is a random version-4 UUID in canonical textual form
// (lowercase, hyphenated, no braces or URN prefix). The host tracks devices
// by this identifier, so anything that does not parse cleanly is rejected
// before a device record is ever created.
package identity

import "github.com/google/uuid"

// IsValidID reports whether s is a canonical uuid4 string.
//
// uuid.Parse accepts several textual variants (braces, urn: prefix, raw hex),
// so the round-trip comparison pins the input to the canonical form.
func IsValidID(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	if u.String() != s {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122
}
