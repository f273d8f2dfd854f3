package migrate

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns a deterministic SHA-256 hex digest of the schema payload.
// It serves as a cheap identity tag for migration history entries, not as a
// security boundary.
func Checksum(schema string) string {
	sum := sha256.Sum256([]byte(schema))
	return hex.EncodeToString(sum[:])
}
