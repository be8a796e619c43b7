package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID, optionally tagged with a prefix.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewToken returns an opaque random token without separators.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsUUID reports whether value parses as a UUID, used to reject malformed
// path ids before they reach the database.
func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
