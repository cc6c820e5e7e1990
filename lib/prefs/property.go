package prefs

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dPrefs/lib/reactive"
	"github.com/ValentinKolb/dPrefs/lib/store"
)

// Property binds one key of a namespace to a reactive cell.
//
// A property starts unsubscribed and holds its default. The first read from
// a writable context seeds the cell from the store and registers a change
// listener; after that reads never touch the store. Writes go to the store
// through the write scheduler and reach the cell only through the listener.
//
// Thread-safety: all methods are safe for concurrent use.
type Property[T any] struct {
	holder *Holder
	key    string
	codec  Codec[T]
	def    T
	cell   *reactive.Cell[T]
	copy   func(T) T

	subMu        sync.Mutex
	subscription atomic.Pointer[store.ListenerHandle]
}

func newProperty[T any](h *Holder, key string, def T, codec Codec[T]) *Property[T] {
	copyFn := func(v T) T { return v }
	if c, ok := codec.(Copier[T]); ok {
		copyFn = c.Copy
	}
	def = copyFn(def)
	return &Property[T]{
		holder: h,
		key:    key,
		codec:  codec,
		def:    def,
		cell:   reactive.NewCell(copyFn(def)),
		copy:   copyFn,
	}
}

// Key returns the store key of the property.
func (p *Property[T]) Key() string {
	return p.key
}

// Default returns the value used while nothing (valid) is stored.
func (p *Property[T]) Default() T {
	return p.copy(p.def)
}

// Subscribed reports whether the property listens to store changes.
func (p *Property[T]) Subscribed() bool {
	return p.subscription.Load() != nil
}

// Get returns the current value. writable tells whether the caller runs in a
// writable context; only then may the first read subscribe to the store.
// A read from a read-only context before that returns the default and has no
// side effects.
func (p *Property[T]) Get(writable bool) T {
	if writable {
		p.ensureSubscribed()
	}
	return p.copy(p.cell.Value())
}

// Value is Get with the writability taken from snapshot s.
func (p *Property[T]) Value(s *reactive.Snapshot) T {
	return p.Get(reactive.IsWritable(s))
}

// Set schedules a commit of v and returns at once. The cell is not changed
// here, the new value arrives once the store reports the change. Waiting for
// the returned task is optional.
func (p *Property[T]) Set(v T) *Task {
	v = p.copy(v)
	return p.holder.submit(p.key, func() error {
		e := p.holder.store.Edit()
		p.codec.Encode(e, p.key, v)
		return e.Commit()
	})
}

// Observe calls fn whenever the cell value is replaced.
func (p *Property[T]) Observe(fn func(T)) (cancel func()) {
	return p.cell.Observe(func(v T) { fn(p.copy(v)) })
}

// Version counts how often the cell value was replaced.
func (p *Property[T]) Version() uint64 {
	return p.cell.Version()
}

// ensureSubscribed registers the change listener once and seeds the cell.
// The handle is tracked by the holder and released by Holder.Close.
func (p *Property[T]) ensureSubscribed() (store.ListenerHandle, bool) {
	if h := p.subscription.Load(); h != nil {
		return *h, true
	}

	p.subMu.Lock()
	defer p.subMu.Unlock()

	if h := p.subscription.Load(); h != nil {
		return *h, true
	}
	h, ok := p.holder.track(p.key, p.onChange)
	if !ok {
		// holder closed
		return 0, false
	}
	p.subscription.Store(&h)

	// registered before reading, so no change between the two is lost
	p.refresh()
	return h, true
}

// onChange is the store listener of the property
func (p *Property[T]) onChange(_ store.IStore, c store.Change) {
	if !c.Matches(p.key) {
		return
	}
	if !p.holder.runtime.Writable() {
		return
	}
	p.refresh()
}

// refresh decodes the stored value and replaces the cell if it differs
func (p *Property[T]) refresh() {
	p.cell.Update(func(current T) (T, bool) {
		fresh := p.codec.Decode(p.holder.store, p.key, p.copy(p.def))
		return fresh, !p.codec.Equal(fresh, current)
	})
}
