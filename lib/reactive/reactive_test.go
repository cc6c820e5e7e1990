package reactive

import (
	"sync"
	"testing"
)

func TestSnapshotWritable(t *testing.T) {
	writableRoot := NewSnapshot(false)
	readOnlyRoot := NewSnapshot(true)

	tests := []struct {
		name string
		s    *Snapshot
		want bool
	}{
		{"writable root", writableRoot, true},
		{"read-only root", readOnlyRoot, false},
		{"read-only child of writable root", writableRoot.Nested(true), false},
		{"writable child of read-only root", readOnlyRoot.Nested(false), false},
		{"writable grandchild", writableRoot.Nested(false).Nested(false), true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWritable(tt.s); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	grandchild := writableRoot.Nested(true).Nested(false)
	if grandchild.Root() != writableRoot {
		t.Errorf("Root must return the outermost snapshot")
	}
}

func TestRuntimeEnter(t *testing.T) {
	rt := NewRuntime()
	if rt.Current() != rt.Global() || !rt.Writable() {
		t.Fatalf("the global snapshot must be current and writable")
	}

	ro := rt.Global().Nested(true)
	rt.Enter(ro, func() {
		if rt.Current() != ro || rt.Writable() {
			t.Errorf("expected the entered read-only snapshot")
		}
		inner := NewSnapshot(false)
		rt.Enter(inner, func() {
			if rt.Current() != inner {
				t.Errorf("expected the inner snapshot")
			}
		})
		if rt.Current() != ro {
			t.Errorf("leaving the inner snapshot must restore the outer one")
		}
	})
	if rt.Current() != rt.Global() {
		t.Errorf("leaving must restore the global snapshot")
	}
}

func TestRuntimeEnterRestoresOnPanic(t *testing.T) {
	rt := NewRuntime()
	func() {
		defer func() { _ = recover() }()
		rt.Enter(NewSnapshot(true), func() { panic("boom") })
	}()
	if rt.Current() != rt.Global() {
		t.Errorf("a panic must not leave the snapshot entered")
	}
}

func TestCell(t *testing.T) {
	c := NewCell("a")
	if c.Value() != "a" || c.Version() != 0 {
		t.Fatalf("unexpected initial state %q/%d", c.Value(), c.Version())
	}

	var seen []string
	cancel := c.Observe(func(v string) { seen = append(seen, v) })

	c.Set("b")
	c.Set("b") // equal values still count
	cancel()
	cancel()
	c.Set("c")

	if c.Value() != "c" || c.Version() != 3 {
		t.Errorf("expected c at version 3, got %q at %d", c.Value(), c.Version())
	}
	if len(seen) != 2 || seen[0] != "b" || seen[1] != "b" {
		t.Errorf("unexpected observations %v", seen)
	}
}

func TestCellUpdate(t *testing.T) {
	c := NewCell(1)
	calls := 0
	c.Observe(func(int) { calls++ })

	if c.Update(func(cur int) (int, bool) { return cur, false }) {
		t.Errorf("a declined update must report false")
	}
	if c.Version() != 0 || calls != 0 {
		t.Errorf("a declined update must not bump the version or notify")
	}

	if !c.Update(func(cur int) (int, bool) { return cur + 1, true }) {
		t.Errorf("expected the update to be applied")
	}
	if c.Value() != 2 || c.Version() != 1 || calls != 1 {
		t.Errorf("unexpected state %d/%d/%d", c.Value(), c.Version(), calls)
	}
}

func TestCellConcurrentSet(t *testing.T) {
	c := NewCell(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			c.Set(v)
			_ = c.Value()
		}(i)
	}
	wg.Wait()
	if c.Version() != 50 {
		t.Errorf("expected version 50, got %d", c.Version())
	}
}
