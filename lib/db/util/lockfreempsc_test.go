package util

import (
	"sync"
	"testing"
	"time"
)

func TestQueueOrderSingleProducer(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 100; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 100; i++ {
		select {
		case val := <-q.Recv():
			if *val != i {
				t.Errorf("Expected %d, got %d", i, *val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case val := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", *val)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := p*perProducer + i
				q.Push(&v)
			}
		}(p)
	}

	seen := make(map[int]bool, producers*perProducer)
	last := make(map[int]int, producers)
	for len(seen) < producers*perProducer {
		select {
		case val := <-q.Recv():
			if seen[*val] {
				t.Fatalf("Duplicate item %d", *val)
			}
			seen[*val] = true

			// items of one producer arrive in push order
			p := *val / perProducer
			if prev, ok := last[p]; ok && prev > *val {
				t.Errorf("Producer %d out of order: %d after %d", p, *val, prev)
			}
			last[p] = *val
		case <-time.After(2 * time.Second):
			t.Fatalf("Timeout, received %d of %d items", len(seen), producers*perProducer)
		}
	}
	wg.Wait()
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewLockFreeMPSC[string]()

	a, b := "a", "b"
	q.Push(&a)
	q.Push(&b)
	q.Close()

	if !q.IsClosed() {
		t.Errorf("Expected queue to be closed")
	}
	c := "c"
	if q.Push(&c) {
		t.Errorf("Push after Close should fail")
	}
	if q.Push(nil) {
		t.Errorf("Push(nil) should fail")
	}

	var got []string
	for v := range q.Recv() {
		got = append(got, *v)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected [a b], got %v", got)
	}
}
