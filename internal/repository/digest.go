package repository

import (
	"crypto/sha256"
	"encoding/hex"
)

// tokenDigest is the at-rest key for a refresh token value. Raw values are never stored.
func tokenDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
