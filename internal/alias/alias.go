// Package alias validates and normalizes human-chosen device aliases.
//
// Normalization is a pure function: it never touches the keyed store, so it
// can run outside the alias-assignment transaction. Uniqueness against other
// devices is not checked here; that is the transaction's job.
package alias

import (
	"fmt"
	"regexp"
	"strings"
)

// Length bounds for a normalized alias.
const (
	MinLength = 3
	MaxLength = 32
)

// pattern is the allowed shape after lowercase folding: a letter followed by
// letters, digits, hyphens or underscores. The colon is excluded so an alias
// can never collide with the store's key namespace.
var pattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// reserved words can never be claimed as aliases. They are either store key
// prefixes or likely future route segments.
var reserved = map[string]struct{}{
	"device": {},
	"alias":  {},
	"scan":   {},
	"host":   {},
	"admin":  {},
	"group":  {},
	"groups": {},
}

// Normalize validates raw against the alias rules and scopes it to the given
// device. It returns the normalized alias, whether it is acceptable, and a
// human-readable message describing the outcome.
//
// The returned alias is meaningful even on failure so the caller can echo the
// rejected value back to the client.
func Normalize(deviceID, raw string) (normalized string, ok bool, msg string) {
	a := strings.ToLower(strings.TrimSpace(raw))

	if a == "" {
		return a, false, "alias cannot be empty"
	}
	if len(a) < MinLength || len(a) > MaxLength {
		return a, false, fmt.Sprintf("alias must be between %d and %d characters", MinLength, MaxLength)
	}
	if !pattern.MatchString(a) {
		return a, false, "alias may only contain lowercase letters, digits, '-' or '_', and must start with a letter"
	}
	if _, isReserved := reserved[a]; isReserved {
		return a, false, fmt.Sprintf("%q is a reserved word", a)
	}
	// Device scoping: an alias may not shadow the device's own identifier,
	// which is already a valid name for it.
	if a == strings.ToLower(deviceID) {
		return a, false, "alias may not equal the device identifier"
	}

	return a, true, fmt.Sprintf("%q is now the device alias", a)
}
