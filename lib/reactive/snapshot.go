package reactive

import "sync"

// Snapshot is an isolation scope for reads and writes of cells. A snapshot
// is either writable or read-only; nested snapshots keep a link to the root
// they were taken from.
type Snapshot struct {
	readOnly bool
	parent   *Snapshot
}

// NewSnapshot returns a root snapshot.
func NewSnapshot(readOnly bool) *Snapshot {
	return &Snapshot{readOnly: readOnly}
}

// ReadOnly reports whether mutation is disallowed in this snapshot.
func (s *Snapshot) ReadOnly() bool {
	return s.readOnly
}

// Root returns the outermost snapshot. A root snapshot returns itself.
func (s *Snapshot) Root() *Snapshot {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Nested returns a child snapshot of s.
func (s *Snapshot) Nested(readOnly bool) *Snapshot {
	return &Snapshot{readOnly: readOnly, parent: s}
}

// IsWritable reports whether neither s nor its root is read-only. A nil
// snapshot is not writable.
func IsWritable(s *Snapshot) bool {
	return s != nil && !s.ReadOnly() && !s.Root().ReadOnly()
}

// --------------------------------------------------------------------------
// Runtime
// --------------------------------------------------------------------------

// Runtime tracks the current snapshot. Outside of any Enter call the current
// snapshot is the runtime's global snapshot, which is writable.
//
// Thread-safety: the runtime models a single UI goroutine. It is safe to call
// Current from other goroutines (store listeners do), but concurrent Enter
// calls from several goroutines interleave on one stack.
type Runtime struct {
	mu     sync.RWMutex
	global *Snapshot
	stack  []*Snapshot
}

// NewRuntime returns a runtime with a writable global snapshot.
func NewRuntime() *Runtime {
	return &Runtime{global: NewSnapshot(false)}
}

// Global returns the global snapshot.
func (r *Runtime) Global() *Snapshot {
	return r.global
}

// Current returns the innermost entered snapshot, or the global one.
func (r *Runtime) Current() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := len(r.stack); n > 0 {
		return r.stack[n-1]
	}
	return r.global
}

// Enter makes s the current snapshot while fn runs.
func (r *Runtime) Enter(s *Snapshot, fn func()) {
	r.mu.Lock()
	r.stack = append(r.stack, s)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.stack = r.stack[:len(r.stack)-1]
		r.mu.Unlock()
	}()
	fn()
}

// Writable reports whether the current snapshot is writable.
func (r *Runtime) Writable() bool {
	return IsWritable(r.Current())
}
