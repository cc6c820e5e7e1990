package badgerdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dPrefs/lib/db"
	"github.com/dgraph-io/badger/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("badger")

const (
	indexPrefixLen   = 8
	conflictRetries  = 5
	maxPendingWrites = 256
)

// DBOptions configures the badger engine
type DBOptions struct {
	// Dir is the directory of the database. Ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in memory, used for tests.
	InMemory bool
	// SyncWrites fsyncs every transaction. Without it a crash may lose the
	// last writes even though Commit returned.
	SyncWrites bool
}

// ErrClosed is returned for operations on a closed engine
var ErrClosed = errors.New("badgerdb: closed")

type badgerImpl struct {
	bdb       *badger.DB
	currIndex atomic.Uint64
	closed    atomic.Bool

	errMu    sync.Mutex
	writeErr error
}

// NewBadgerDB opens (or creates) a badger database.
func NewBadgerDB(opts DBOptions) (db.KVDB, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("badgerdb: directory is required")
		}
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("badgerdb: create %s: %w", opts.Dir, err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(log)

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerdb: open: %w", err)
	}

	impl := &badgerImpl{bdb: bdb}
	impl.restoreWriteIdx()
	return impl, nil
}

// restoreWriteIdx sets the write index to the highest index found on disk
func (b *badgerImpl) restoreWriteIdx() {
	b.rangeRaw(func(_ string, raw []byte) bool {
		if idx, _, ok := splitEntry(raw); ok {
			b.SetWriteIdx(idx)
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Entry encoding
// --------------------------------------------------------------------------

func joinEntry(index uint64, value []byte) []byte {
	out := make([]byte, indexPrefixLen+len(value))
	binary.LittleEndian.PutUint64(out, index)
	copy(out[indexPrefixLen:], value)
	return out
}

func splitEntry(raw []byte) (uint64, []byte, bool) {
	if len(raw) < indexPrefixLen {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint64(raw), raw[indexPrefixLen:], true
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// update runs fn in a read-write transaction and retries on conflicts
func (b *badgerImpl) update(fn func(txn *badger.Txn) error) error {
	if b.closed.Load() {
		return ErrClosed
	}
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = b.bdb.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// storedIndex returns the write index of the stored entry for key
func storedIndex(txn *badger.Txn, key []byte) (uint64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var idx uint64
	err = item.Value(func(val []byte) error {
		idx, _, _ = splitEntry(val)
		return nil
	})
	return idx, true, err
}

func (b *badgerImpl) Set(key string, value []byte, writeIdx uint64) {
	b.SetWriteIdx(writeIdx)

	err := b.update(func(txn *badger.Txn) error {
		idx, loaded, err := storedIndex(txn, []byte(key))
		if err != nil {
			return err
		}
		if loaded && writeIdx < idx {
			return nil // stale write
		}
		return txn.Set([]byte(key), joinEntry(writeIdx, value))
	})
	if err != nil {
		log.Errorf("set %q failed: %v", key, err)
		b.recordWriteError(fmt.Errorf("set %q: %w", key, err))
	}
}

func (b *badgerImpl) Delete(key string, writeIdx uint64) {
	b.SetWriteIdx(writeIdx)

	err := b.update(func(txn *badger.Txn) error {
		idx, loaded, err := storedIndex(txn, []byte(key))
		if err != nil || !loaded {
			return err
		}
		if writeIdx < idx {
			return nil
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		log.Errorf("delete %q failed: %v", key, err)
		b.recordWriteError(fmt.Errorf("delete %q: %w", key, err))
	}
}

// recordWriteError keeps the first failed write until TakeWriteError
func (b *badgerImpl) recordWriteError(err error) {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	if b.writeErr == nil {
		b.writeErr = err
	}
}

func (b *badgerImpl) TakeWriteError() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	err := b.writeErr
	b.writeErr = nil
	return err
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (b *badgerImpl) Get(key string) ([]byte, bool) {
	if b.closed.Load() {
		return nil, false
	}
	var (
		value []byte
		found bool
	)
	err := b.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		_, v, ok := splitEntry(raw)
		if !ok {
			return fmt.Errorf("corrupt entry for key %q", key)
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		log.Errorf("get %q failed: %v", key, err)
		return nil, false
	}
	return value, found
}

func (b *badgerImpl) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

func (b *badgerImpl) Range(fn func(key string, value []byte) bool) {
	b.rangeRaw(func(key string, raw []byte) bool {
		_, value, ok := splitEntry(raw)
		if !ok {
			return true
		}
		return fn(key, value)
	})
}

func (b *badgerImpl) rangeRaw(fn func(key string, raw []byte) bool) {
	if b.closed.Load() {
		return
	}
	err := b.bdb.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			cont := true
			if err := item.Value(func(val []byte) error {
				cont = fn(string(item.KeyCopy(nil)), val)
				return nil
			}); err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		log.Errorf("range failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

func (b *badgerImpl) Save(w io.Writer) error {
	_, err := b.bdb.Backup(w, 0)
	return err
}

func (b *badgerImpl) Load(r io.Reader) error {
	if err := b.bdb.DropAll(); err != nil {
		return err
	}
	if err := b.bdb.Load(r, maxPendingWrites); err != nil {
		return err
	}
	b.restoreWriteIdx()
	return nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (b *badgerImpl) GetInfo() db.DatabaseInfo {
	entries := 0
	sizeBytes := 0
	b.rangeRaw(func(key string, raw []byte) bool {
		entries++
		sizeBytes += len(key) + len(raw)
		return true
	})

	lsm, vlog := b.bdb.Size()
	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		LSMSizeBytes      int64  `json:"lsm_size_bytes"`
		VLogSizeBytes     int64  `json:"vlog_size_bytes"`
	}{
		CurrentWriteIndex: b.currIndex.Load(),
		LSMSizeBytes:      lsm,
		VLogSizeBytes:     vlog,
	}

	return db.DatabaseInfo{
		Entries:   entries,
		SizeBytes: sizeBytes,
		DbType:    db.ImplBadger,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureRange, db.FeatureSave, db.FeatureLoad, db.FeatureDurable,
		},
		Metadata: meta,
	}
}

func (b *badgerImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureRange |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureDurable
	return supportedFeatures&feature == feature
}

func (b *badgerImpl) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.bdb.Close()
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

func (b *badgerImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := b.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if b.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

func (b *badgerImpl) WriteIdx() uint64 {
	return b.currIndex.Load()
}
