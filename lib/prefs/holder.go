package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ValentinKolb/dPrefs/lib/reactive"
	"github.com/ValentinKolb/dPrefs/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("prefs")

var (
	// ErrDuplicateKey is returned when a key is declared twice on one holder.
	ErrDuplicateKey = errors.New("key already declared")
	// ErrEmptyKey is returned when a property is declared without a key.
	ErrEmptyKey = errors.New("key must not be empty")
)

// Holder is an opened namespace and the factory for its properties.
// Each key can be declared once per holder.
//
// Thread-safety: all methods are safe for concurrent use.
type Holder struct {
	name      string
	store     store.IStore
	runtime   *reactive.Runtime
	scheduler *Scheduler

	mu     sync.Mutex
	keys   map[string]struct{}
	closed bool

	// listener handles of subscribed properties, by key
	subscriptions *xsync.MapOf[string, store.ListenerHandle]
}

// HolderOption configures a Holder
type HolderOption func(*Holder)

// WithRuntime overrides the reactive runtime of the environment.
func WithRuntime(rt *reactive.Runtime) HolderOption {
	return func(h *Holder) {
		h.runtime = rt
	}
}

// WithScheduler overrides the write scheduler of the environment.
func WithScheduler(s *Scheduler) HolderOption {
	return func(h *Holder) {
		h.scheduler = s
	}
}

// Open opens the namespace name in env, or reuses it if it is already open,
// and returns a new holder for it. mode is the permission of files created
// for the namespace.
func Open(env *Environment, name string, mode os.FileMode, opts ...HolderOption) (*Holder, error) {
	s, err := env.namespace(name, mode)
	if err != nil {
		return nil, err
	}
	return newHolder(s, env.runtime(), env.scheduler(), opts...), nil
}

// NewHolder creates a holder on an already opened store.
func NewHolder(s store.IStore, opts ...HolderOption) *Holder {
	return newHolder(s, reactive.NewRuntime(), DefaultScheduler(), opts...)
}

func newHolder(s store.IStore, rt *reactive.Runtime, sched *Scheduler, opts ...HolderOption) *Holder {
	h := &Holder{
		name:          s.Name(),
		store:         s,
		runtime:       rt,
		scheduler:     sched,
		keys:          make(map[string]struct{}),
		subscriptions: xsync.NewMapOf[string, store.ListenerHandle](),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the namespace name.
func (h *Holder) Name() string {
	return h.name
}

// Store returns the underlying store.
func (h *Holder) Store() store.IStore {
	return h.store
}

// Runtime returns the reactive runtime used by the properties of h.
func (h *Holder) Runtime() *reactive.Runtime {
	return h.runtime
}

// Keys returns the declared keys, sorted.
func (h *Holder) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.keys))
	for k := range h.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subscribe forwards to the store.
func (h *Holder) Subscribe(l store.Listener) store.ListenerHandle {
	return h.store.Subscribe(l)
}

// Unsubscribe forwards to the store.
func (h *Holder) Unsubscribe(handle store.ListenerHandle) {
	h.store.Unsubscribe(handle)
}

// Flush waits until all writes to this namespace submitted so far are
// committed and their notifications delivered.
func (h *Holder) Flush(ctx context.Context) error {
	err := h.scheduler.FlushNamespace(ctx, h.name)
	if syncer, ok := h.store.(store.Syncer); ok {
		if serr := syncer.SyncListeners(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// Close unregisters the listeners of all properties. The properties keep
// their last value. The store stays open, it belongs to the environment.
func (h *Holder) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.subscriptions.Range(func(key string, handle store.ListenerHandle) bool {
		h.store.Unsubscribe(handle)
		h.subscriptions.Delete(key)
		return true
	})
	return nil
}

// --------------------------------------------------------------------------
// Internal
// --------------------------------------------------------------------------

// declare reserves key for a new property
func (h *Holder) declare(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.keys[key]; ok {
		return fmt.Errorf("%s/%s: %w", h.name, key, ErrDuplicateKey)
	}
	h.keys[key] = struct{}{}
	return nil
}

// track subscribes l for the property key and remembers the handle
func (h *Holder) track(key string, l store.Listener) (store.ListenerHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, false
	}
	handle := h.store.Subscribe(l)
	h.subscriptions.Store(key, handle)
	log.Debugf("%s/%s: subscribed (handle %d)", h.name, key, handle)
	return handle, true
}

func (h *Holder) submit(key string, fn func() error) *Task {
	return h.scheduler.Submit(h.name, key, fn)
}

// --------------------------------------------------------------------------
// Property factories
// --------------------------------------------------------------------------

// Declare creates a property for key with a custom codec. Declaring does not
// touch the store.
func Declare[T any](h *Holder, key string, def T, codec Codec[T]) (*Property[T], error) {
	if err := h.declare(key); err != nil {
		return nil, err
	}
	return newProperty(h, key, def, codec), nil
}

func Bool(h *Holder, key string, def bool) (*Property[bool], error) {
	return Declare(h, key, def, BoolCodec)
}

func String(h *Holder, key string, def string) (*Property[string], error) {
	return Declare(h, key, def, StringCodec)
}

func Int(h *Holder, key string, def int32) (*Property[int32], error) {
	return Declare(h, key, def, IntCodec)
}

func Float(h *Holder, key string, def float32) (*Property[float32], error) {
	return Declare(h, key, def, FloatCodec)
}

func Long(h *Holder, key string, def int64) (*Property[int64], error) {
	return Declare(h, key, def, LongCodec)
}

// StringSet declares a set property. Values are returned sorted and without
// duplicates once they have been read from the store.
func StringSet(h *Holder, key string, def []string) (*Property[[]string], error) {
	return Declare(h, key, def, StringSetCodec)
}

// Enum declares a property stored by constant name. values lists the known
// constants, def is always known.
func Enum[E EnumValue](h *Holder, key string, def E, values ...E) (*Property[E], error) {
	return Declare(h, key, def, EnumCodec(append([]E{def}, values...)...))
}

// Must panics if err is not nil. It is meant for declaration blocks:
//
//	darkMode := prefs.Must(prefs.Bool(h, "dark_mode", false))
func Must[T any](p *Property[T], err error) *Property[T] {
	if err != nil {
		panic(err)
	}
	return p
}
