package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
)

// --------------------------------------------------------------------------
// Seeds
// --------------------------------------------------------------------------

// GenerateSeed returns a random seed so that shard placement differs between
// engine instances
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Key Hashing
// --------------------------------------------------------------------------

// HashString hashes a preference key with xxhash and mixes in seed.
// The result picks the shard of the key.
func HashString(s string, seed uint64) uint64 {
	h := xxhash.Sum64String(s) ^ seed
	// final avalanche of splitmix64, so the seed affects every bit
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return h
}
