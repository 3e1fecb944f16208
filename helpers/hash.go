package helpers

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// HashContent calculates the BLAKE3-256 hash of the given content.
// The hex form identifies a message body independently of which folder or
// account currently holds it.
func HashContent(content []byte) string {
	hash := blake3.Sum256(content)
	return hex.EncodeToString(hash[:])
}
