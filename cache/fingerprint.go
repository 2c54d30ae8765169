// Package cache implements the tiered read path: an optional distributed
// tier in front of the durable result-set cache, with upstream fallback
// and write-back orchestrated by the Manager.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the stable cache key of a raw query: the SHA-256 of
// the text as typed, in lowercase hex. The text is not normalized, so
// queries differing only in whitespace are distinct keys.
func Fingerprint(raw string) string {
	var sum = sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
