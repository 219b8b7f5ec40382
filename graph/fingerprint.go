package graph

import (
	"encoding/hex"

	"github.com/minio/highwayhash"
)

var fingerprintKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// Fingerprint returns a stable content hash for a module source. The same
// bytes always yield the same fingerprint, across processes and platforms.
func Fingerprint(data []byte) string {
	hash, err := highwayhash.New128(fingerprintKey)
	if err != nil {
		// the key is a compile-time constant of valid length
		panic(err)
	}
	hash.Write(data)
	return hex.EncodeToString(hash.Sum(nil))
}

// HashID returns a short stable identifier for arbitrary identity material,
// used for flow IDs.
func HashID(data []byte) string {
	hash, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		panic(err)
	}
	hash.Write(data)
	sum := hash.Sum(nil)
	return hex.EncodeToString(sum)
}
