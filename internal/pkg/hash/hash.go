package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/spaolacci/murmur3"
)

// Hash returns the hash value of data.
func Hash(data []byte) uint64 {
	return murmur3.Sum64(data)
}

// HashSeeded hashes data followed by a single seed byte without modifying data.
func HashSeeded(data []byte, seed byte) uint64 {
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	buf[len(data)] = seed
	return murmur3.Sum64(buf)
}

// HashBlobSha256 returns the hex SHA-256 of a MIME type and payload. Identical
// bytes declared with different types hash differently.
func HashBlobSha256(mimeType string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(mimeType))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
