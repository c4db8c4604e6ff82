package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of a label or sequence name.
func ID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Bytes computes the xxHash64 of raw bytes.
func Bytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}
