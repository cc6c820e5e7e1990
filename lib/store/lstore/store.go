package lstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dPrefs/lib/db"
	"github.com/ValentinKolb/dPrefs/lib/db/util"
	"github.com/ValentinKolb/dPrefs/lib/store"
	"github.com/ValentinKolb/dPrefs/lib/internal"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("store")

// FileSuffix is appended to the namespace name to form the snapshot file name
const FileSuffix = ".prefs"

// Config configures a local store
type Config struct {
	// Name of the namespace
	Name string
	// Dir is the directory the snapshot file is written to
	Dir string
	// Mode is the permission of the snapshot file
	Mode os.FileMode
	// Factory creates the engine. The engine must support Save and Load unless
	// it is durable.
	Factory store.DBFactory
	// Watch reloads the snapshot file when another writer replaces it
	Watch bool
}

// event is one item on the notification queue. A barrier carries no change
// and is closed by the dispatcher once everything queued before it has been delivered.
type event struct {
	change  store.Change
	barrier chan struct{}
}

type storeImpl struct {
	name    string
	path    string // snapshot file, empty for durable engines
	mode    os.FileMode
	factory store.DBFactory
	db      db.KVDB
	index   atomic.Uint64

	// writeMu serializes commits and reloads
	writeMu sync.Mutex
	// written is the checksum of the snapshot file content last written or
	// loaded by this store, guarded by writeMu
	written struct {
		sum uint64
		ok  bool
	}

	listeners  *xsync.MapOf[store.ListenerHandle, store.Listener]
	nextHandle atomic.Uint64
	events     *util.LockFreeMPSC[event]
	dispatched chan struct{}

	watcher *fsnotify.Watcher
	watched chan struct{}
	closed  atomic.Bool

	registry      gometrics.Registry
	commitTimer   gometrics.Timer
	notifications gometrics.Meter
	reloads       gometrics.Counter
}

// Open opens the namespace described by conf. An existing snapshot file is
// loaded into the engine.
func Open(conf Config) (store.IStore, error) {
	if conf.Name == "" {
		return nil, store.NewError(store.RetCInvalidOperation, "namespace name is required", nil)
	}
	if conf.Factory == nil {
		return nil, store.NewError(store.RetCInvalidOperation, "engine factory is required", nil)
	}
	if conf.Mode == 0 {
		conf.Mode = 0o600
	}

	engine, err := conf.Factory()
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, "create engine", err)
	}

	registry := gometrics.NewRegistry()
	s := &storeImpl{
		name:          conf.Name,
		mode:          conf.Mode,
		factory:       conf.Factory,
		db:            engine,
		listeners:     xsync.NewMapOf[store.ListenerHandle, store.Listener](),
		events:        util.NewLockFreeMPSC[event](),
		dispatched:    make(chan struct{}),
		registry:      registry,
		commitTimer:   gometrics.NewRegisteredTimer("commit", registry),
		notifications: gometrics.NewRegisteredMeter("notifications", registry),
		reloads:       gometrics.NewRegisteredCounter("reloads", registry),
	}

	if !engine.SupportsFeature(db.FeatureDurable) {
		if !engine.SupportsFeature(db.FeatureSave | db.FeatureLoad) {
			_ = engine.Close()
			return nil, store.NewError(store.RetCUnsupportedOperation, "engine is neither durable nor supports Save/Load", nil)
		}
		if conf.Dir == "" {
			_ = engine.Close()
			return nil, store.NewError(store.RetCInvalidOperation, "directory is required for non-durable engines", nil)
		}
		if err := os.MkdirAll(conf.Dir, 0o700); err != nil {
			_ = engine.Close()
			return nil, store.NewError(store.RetCPersistError, "create directory", err)
		}
		s.path = filepath.Join(conf.Dir, conf.Name+FileSuffix)
		if err := s.loadFile(engine); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = engine.Close()
			return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("load %s", s.path), err)
		}
	}
	s.index.Store(engine.WriteIdx())

	go s.dispatch()

	if conf.Watch && s.path != "" {
		if err := s.startWatcher(); err != nil {
			_ = s.Close()
			return nil, store.NewError(store.RetCInternalError, "start watcher", err)
		}
	}

	log.Debugf("opened namespace %q (engine=%s, file=%q)", s.name, engine.GetInfo().DbType, s.path)
	return s, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Name() string {
	return s.name
}

// get reads and decodes a key, a missing key returns def
func get[T any](s *storeImpl, key string, def T, decode func([]byte) (T, error)) (T, error) {
	raw, ok := s.db.Get(key)
	if !ok {
		return def, nil
	}
	v, err := decode(raw)
	if err != nil {
		return def, fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

func (s *storeImpl) GetBool(key string, def bool) (bool, error) {
	return get(s, key, def, internal.DecodeBool)
}

func (s *storeImpl) GetString(key string, def string) (string, error) {
	return get(s, key, def, internal.DecodeString)
}

func (s *storeImpl) GetInt(key string, def int32) (int32, error) {
	return get(s, key, def, internal.DecodeInt)
}

func (s *storeImpl) GetFloat(key string, def float32) (float32, error) {
	return get(s, key, def, internal.DecodeFloat)
}

func (s *storeImpl) GetLong(key string, def int64) (int64, error) {
	return get(s, key, def, internal.DecodeLong)
}

func (s *storeImpl) GetStringSet(key string, def []string) ([]string, error) {
	return get(s, key, def, internal.DecodeStringSet)
}

func (s *storeImpl) Contains(key string) bool {
	return s.db.Has(key)
}

func (s *storeImpl) Keys() []string {
	var keys []string
	s.db.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

func (s *storeImpl) All() map[string]any {
	out := make(map[string]any)
	s.db.Range(func(key string, raw []byte) bool {
		v, err := internal.Decode(raw)
		if err != nil {
			log.Warningf("skipping undecodable key %q in %q: %v", key, s.name, err)
			return true
		}
		out[key] = v
		return true
	})
	return out
}

func (s *storeImpl) Edit() store.Editor {
	return &editorImpl{s: s, ops: make(map[string]op)}
}

func (s *storeImpl) Subscribe(l store.Listener) store.ListenerHandle {
	h := store.ListenerHandle(s.nextHandle.Add(1))
	s.listeners.Store(h, l)
	return h
}

func (s *storeImpl) Unsubscribe(h store.ListenerHandle) {
	s.listeners.Delete(h)
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.watcher != nil {
		_ = s.watcher.Close()
		<-s.watched
	}

	// a commit holding writeMu finishes its enqueue, later ones see closed
	s.writeMu.Lock()
	s.writeMu.Unlock()

	// deliver what is queued, then stop
	s.events.Close()
	<-s.dispatched

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Close()
}

// SyncListeners blocks until every notification queued before the call has
// been delivered to the listeners.
func (s *storeImpl) SyncListeners(ctx context.Context) error {
	barrier := make(chan struct{})
	if !s.events.Push(&event{barrier: barrier}) {
		return store.ErrClosed
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Commit
// --------------------------------------------------------------------------

// commit applies the staged operations of an editor, persists the namespace
// and queues one notification per changed key.
func (s *storeImpl) commit(clear bool, order []string, ops map[string]op) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	start := time.Now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Close may have run while this commit waited for the lock
	if s.closed.Load() {
		return store.ErrClosed
	}

	reporter, _ := s.db.(db.WriteErrorReporter)
	if reporter != nil {
		_ = reporter.TakeWriteError()
	}

	idx := s.index.Add(1)
	var changes []store.Change

	if clear {
		keys := s.Keys()
		for _, key := range keys {
			s.db.Delete(key, idx)
		}
		if len(keys) > 0 {
			changes = append(changes, store.Change{Cleared: true})
		}
	}

	for _, key := range order {
		o := ops[key]
		old, had := s.db.Get(key)
		switch {
		case o.remove:
			if had {
				s.db.Delete(key, idx)
				changes = append(changes, store.Change{Key: key})
			}
		case !had || !bytes.Equal(old, o.value):
			s.db.Set(key, o.value, idx)
			changes = append(changes, store.Change{Key: key})
		}
	}

	var writeErr error
	if reporter != nil {
		writeErr = reporter.TakeWriteError()
	}

	if len(changes) == 0 {
		if writeErr != nil {
			return store.NewError(store.RetCPersistError, fmt.Sprintf("write namespace %q", s.name), writeErr)
		}
		return nil
	}

	// listeners are told even if a write or the file failed, they re-read
	// whatever the engine holds
	err := s.persist()
	s.enqueue(changes)
	s.commitTimer.UpdateSince(start)

	if writeErr != nil {
		return store.NewError(store.RetCPersistError, fmt.Sprintf("write namespace %q", s.name), writeErr)
	}
	if err != nil {
		return store.NewError(store.RetCPersistError, fmt.Sprintf("persist namespace %q", s.name), err)
	}
	return nil
}

// persist writes the snapshot file. Callers must hold writeMu.
// The file is replaced atomically: write to a temp file, fsync, rename.
func (s *storeImpl) persist() error {
	if s.path == "" {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(s.mode); err != nil {
		_ = tmp.Close()
		return err
	}
	digest := xxhash.New()
	if err := s.db.Save(io.MultiWriter(tmp, digest)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	s.written.sum, s.written.ok = digest.Sum64(), true
	return nil
}

// loadFile loads the snapshot file into engine and remembers its checksum
func (s *storeImpl) loadFile(engine db.KVDB) error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if err := engine.Load(bytes.NewReader(raw)); err != nil {
		return err
	}
	s.written.sum, s.written.ok = xxhash.Sum64(raw), true
	return nil
}

// --------------------------------------------------------------------------
// Notification dispatch
// --------------------------------------------------------------------------

func (s *storeImpl) enqueue(changes []store.Change) {
	for _, c := range changes {
		s.events.Push(&event{change: c})
	}
}

// dispatch delivers queued changes to all listeners, one at a time
func (s *storeImpl) dispatch() {
	defer close(s.dispatched)

	for ev := range s.events.Recv() {
		if ev.barrier != nil {
			close(ev.barrier)
			continue
		}
		s.notifications.Mark(1)
		s.listeners.Range(func(h store.ListenerHandle, l store.Listener) bool {
			s.deliver(h, l, ev.change)
			return true
		})
	}
}

// deliver calls one listener and keeps the dispatcher alive if it panics
func (s *storeImpl) deliver(h store.ListenerHandle, l store.Listener, c store.Change) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("listener %d of %q panicked on %s: %v", h, s.name, c, r)
		}
	}()
	l(s, c)
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Metrics returns the metrics registry of a local store (commit timer,
// notification meter, reload counter), nil for other stores.
func Metrics(s store.IStore) gometrics.Registry {
	if impl, ok := s.(*storeImpl); ok {
		return impl.registry
	}
	return nil
}

// Info returns engine information of a local store.
func Info(s store.IStore) (db.DatabaseInfo, bool) {
	if impl, ok := s.(*storeImpl); ok {
		return impl.db.GetInfo(), true
	}
	return db.DatabaseInfo{}, false
}

// Path returns the snapshot file of a local store, empty for durable engines.
func Path(s store.IStore) string {
	if impl, ok := s.(*storeImpl); ok {
		return impl.path
	}
	return ""
}
