package beemsg

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
)

// authHash truncates a SHA-256 digest of the shared secret to the 64-bit
// field BeeMsg carries in every frame header (§3.A/§4.B).
func authHash(secret string) uint64 {
	sum := sha256.Sum256([]byte(secret))
	return binary.LittleEndian.Uint64(sum[:8])
}

func checkAuthHash(got uint64, secret string) bool {
	want := authHash(secret)
	var a, b [8]byte
	binary.LittleEndian.PutUint64(a[:], got)
	binary.LittleEndian.PutUint64(b[:], want)
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
