package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dPrefs/lib/db"
	"github.com/ValentinKolb/dPrefs/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dPrefs/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "MAPLEPRF" // File format identifier
	mapleVersion = 1          // Snapshot format version
	maxKeyLen    = 1 << 16    // Upper bound accepted when reading key lengths
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl is a sharded in-memory database
type mapleImpl struct {
	mu        sync.RWMutex      // guards shards and seed against Load
	numShards int               // Number of shards
	seed      uint64            // Seed for shard selection
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical write index
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = number of CPUs)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	return &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(opts.NumShards),
	}
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shardFor returns the shard of a key. Callers must hold mu.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(key, maple.seed, maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry. Writes with an index lower than the stored
// entry's index are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, writeIdx uint64) {
	maple.SetWriteIdx(writeIdx)

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	maple.mu.RLock()
	defer maple.mu.RUnlock()

	maple.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && writeIdx < old.Index {
			return old, false // stale write
		}
		return internal.Entry{Value: valueCopy, Index: writeIdx}, false
	})
}

// Delete removes an entry unless it was written with a higher index.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, writeIdx uint64) {
	maple.SetWriteIdx(writeIdx)

	maple.mu.RLock()
	defer maple.mu.RUnlock()

	maple.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && writeIdx < old.Index {
			return old, false
		}
		return old, true
	})
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a copy of the value for a key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	maple.mu.RLock()
	entry, ok := maple.shardFor(key).Data.Load(key)
	maple.mu.RUnlock()

	if !ok {
		return nil, false
	}
	data := make([]byte, len(entry.Value))
	copy(data, entry.Value)
	return data, true
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	maple.mu.RLock()
	defer maple.mu.RUnlock()

	_, ok := maple.shardFor(key).Data.Load(key)
	return ok
}

// Range visits every entry. The iteration is not a consistent snapshot when
// writes happen concurrently.
func (maple *mapleImpl) Range(fn func(key string, value []byte) bool) {
	maple.mu.RLock()
	defer maple.mu.RUnlock()

	for _, shard := range maple.shards {
		cont := true
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			cont = fn(key, entry.Value)
			return cont
		})
		if !cont {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

type savedEntry struct {
	key   string
	entry internal.Entry
}

// Save persists the database to the writer. Entries are written sorted by key
// so that equal databases produce equal files.
//
// Thread-safety: Concurrent writes are allowed, the snapshot is fuzzy.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 64*1024)

	var entries []savedEntry
	maple.mu.RLock()
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			value := make([]byte, len(entry.Value))
			copy(value, entry.Value)
			entries = append(entries, savedEntry{key, internal.Entry{Value: value, Index: entry.Index}})
			return true
		})
	}
	maple.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.currIndex.Load()); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	// Write data entries
	for _, item := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the database content with a snapshot written by Save.
// On error the current content is left untouched.
//
// Thread-safety: Blocks all other operations while the new shards are swapped in.
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var writeIdx, count uint64
	if err := binary.Read(br, binary.LittleEndian, &writeIdx); err != nil {
		return err
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	seed := util.GenerateSeed()
	shards := newShards(maple.numShards)

	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		if keyLen > maxKeyLen {
			return fmt.Errorf("invalid key length %d", keyLen)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var index uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		internal.GetShard(string(key), seed, shards).Data.Store(string(key), internal.Entry{
			Value: value,
			Index: index,
		})
	}

	maple.mu.Lock()
	maple.shards = shards
	maple.seed = seed
	maple.mu.Unlock()

	maple.SetWriteIdx(writeIdx)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	maple.mu.RLock()
	defer maple.mu.RUnlock()

	entries := 0
	sizeBytes := 0
	shardSizes := make([]int, len(maple.shards))
	for i, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			sizeBytes += len(key) + len(entry.Value) + 8
			return true
		})
		shardSizes[i] = shard.Data.Size()
		entries += shardSizes[i]
	}

	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		ShardCount        int    `json:"shard_count"`
		ShardSizes        []int  `json:"shard_sizes"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardSizes:        shardSizes,
	}

	return db.DatabaseInfo{
		Entries:   entries,
		SizeBytes: sizeBytes,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureRange, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureRange |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close is a no-op, maple holds no external resources
func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

// SetWriteIdx updates the current index if the new index is greater.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
