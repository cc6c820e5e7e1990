package reactive

import "sync"

// Cell is an observable value. Every Set replaces the value, bumps the
// version and calls the observers, even when the new value equals the old
// one. Callers that want to skip equal values have to compare first.
//
// Thread-safety: all methods are safe for concurrent use. Observers are
// called on the goroutine that called Set, after the lock is released.
type Cell[T any] struct {
	mu        sync.RWMutex
	value     T
	version   uint64
	observers map[uint64]func(T)
	nextID    uint64
}

// NewCell returns a cell holding initial at version 0.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value:     initial,
		observers: make(map[uint64]func(T)),
	}
}

func (c *Cell[T]) Value() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Version counts the Set calls so far.
func (c *Cell[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Cell[T]) Set(v T) {
	c.Update(func(T) (T, bool) { return v, true })
}

// Update calls fn with the current value while holding the cell lock. If fn
// returns true, its result replaces the value and observers are notified.
// fn must not call methods of the same cell.
func (c *Cell[T]) Update(fn func(current T) (next T, replace bool)) bool {
	c.mu.Lock()
	next, replace := fn(c.value)
	if !replace {
		c.mu.Unlock()
		return false
	}
	c.value = next
	c.version++
	observers := make([]func(T), 0, len(c.observers))
	for _, obs := range c.observers {
		observers = append(observers, obs)
	}
	c.mu.Unlock()

	for _, obs := range observers {
		obs(next)
	}
	return true
}

// Observe registers fn for every future Set. The returned function removes
// the observer again.
func (c *Cell[T]) Observe(fn func(T)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}
