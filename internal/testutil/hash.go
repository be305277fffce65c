package testutil

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Blake3Hex returns the BLAKE3-256 digest of data as a lowercase hex string.
// Matches the fileHash format produced by the filesystem manager.
func Blake3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
