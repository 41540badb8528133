package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyLength is the length in hex characters of a derived cache key.
//
// Keys are the first 16 hex characters (64 bits) of a SHA-256 digest. By the
// birthday bound, the collision probability across n keys is about
// n^2 / 2^65: at the expected key-space size of 10^6 entries that is
// ~2.7e-8, and even at 10^8 entries it stays below 0.03%. Negligible for a
// cache, where a collision costs correctness of one entry, not safety.
const KeyLength = 16

// Key derives the deterministic fingerprint addressing one
// (entityID, propertyName) pair in both tiers.
func Key(entityID, propertyName string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("metadata:%s:%s", entityID, propertyName)))
	return hex.EncodeToString(sum[:])[:KeyLength]
}
