package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a fresh entity id. Entity tables use uuid primary keys.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether value parses as an entity id.
func ValidID(value string) bool {
	return uuid.Validate(value) == nil
}

// NewToken returns an opaque random token, optionally prefixed.
func NewToken(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
