package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprint is a collision-resistant hash of (profile, key), naming both
// the cached body file and its ".meta"/".lock" companions.
func fingerprint(profile, key string) string {
	h := sha256.New()
	h.Write([]byte(profile))
	h.Write([]byte{0}) // separator: prevents ("ab", "c") colliding with ("a", "bc")
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
