// Package uuid generates random identifiers for sessions, operations and
// journal events.
package uuid

import "github.com/google/uuid"

// New returns a new random (v4) UUID string.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
