package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestDomain prefixes every trace digest. The version suffix lets the
// rendering change without old and new digests colliding.
const DigestDomain = "vcav/trace/v1"

// Digest is the content identity of a trace: SHA-256 over DigestDomain, a
// NUL separator and Format(events). Two runs with equal digests fired the
// same callbacks with the same attributes at the same offsets.
func Digest(events []Event) string {
	h := sha256.New()
	h.Write([]byte(DigestDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(Format(events)))
	return hex.EncodeToString(h.Sum(nil))
}
