// Package digest derives content fingerprints for uploaded assets.
// The fingerprint doubles as the asset's identity: two byte-identical
// uploads always hash to the same value and are rejected as duplicates.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// ShortLen is how much of a fingerprint appears in activity details and
// log lines; enough to identify, short enough to read.
const ShortLen = 16

// Sum returns the SHA-256 fingerprint of content as lowercase hex.
func Sum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SumString fingerprints the UTF-8 bytes of s. Exposed for integrity
// checks over arbitrary text.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Prefix returns the first n characters of fingerprint, used when a full
// 64-character hash would drown out a log line.
func Prefix(fingerprint string, n int) string {
	if n >= len(fingerprint) {
		return fingerprint
	}
	return fingerprint[:n]
}

// Short is Prefix at the standard log length.
func Short(fingerprint string) string {
	return Prefix(fingerprint, ShortLen)
}
