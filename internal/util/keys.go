package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key joins a namespace prefix and an id. Prefixes are expected to carry
// their own separator (e.g. "cache:shop:").
func Key(prefix, id string) string {
	return prefix + id
}

// Redact returns a short stable digest of s, safe for logs.
func Redact(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
