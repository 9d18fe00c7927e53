// Package sha256 fingerprints staging artifacts so an archived CSV can be
// matched to the exact bytes a job imported.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
