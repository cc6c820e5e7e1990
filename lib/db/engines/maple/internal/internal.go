package internal

import (
	"github.com/ValentinKolb/dPrefs/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry stores a value together with the write index of its last update
type Entry struct {
	Value []byte // Stored data
	Index uint64 // Write index when this entry was created/updated
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the shard responsible for a key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key string, seed uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shifted := util.HashString(key, seed) >> 7
	return shards[shifted%uint64(len(shards))]
}
