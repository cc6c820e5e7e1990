package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
//
// Producers append to a linked list with CAS operations, a single internal
// goroutine moves the items into the channel returned by Recv. The queue is
// unbounded, so Push never blocks on a slow consumer. Items pushed by one
// producer are received in the order they were pushed.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan *T
	closed atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a new queue and starts its forwarding goroutine.
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()

	return q
}

// Push adds an item to the queue.
// Returns false if the value is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var spins uint8
	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have moved the tail for us
				q.tail.CompareAndSwap(tailNode, newNode)

				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		if spins < 8 {
			spins++
			for i := 0; i < 1<<spins; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// forward moves items from the linked list into the output channel.
// It closes the channel once the queue is closed and drained.
func (q *LockFreeMPSC[T]) forward() {
	defer close(q.out)

	for {
		delivered := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil
		}

		if !delivered && q.closed.Load() {
			return
		}

		if !delivered {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel the single consumer reads from.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close prevents further pushes. Items already queued are still delivered.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the queued items. O(n), debugging only.
func (q *LockFreeMPSC[T]) Len() int {
	count := 0
	for current := q.head.Load().next.Load(); current != nil; current = current.next.Load() {
		count++
	}
	return count
}
