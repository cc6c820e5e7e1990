package prefs

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/ValentinKolb/dPrefs/lib/reactive"
	"github.com/ValentinKolb/dPrefs/lib/store"
)

// theme is an enum used by the tests
type theme int

const (
	themeLight theme = iota
	themeDark
	themeSystem
)

func (t theme) String() string {
	switch t {
	case themeLight:
		return "LIGHT"
	case themeDark:
		return "DARK"
	case themeSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

func newEnv(t *testing.T, dir string, engine common.EngineType, watch bool) *Environment {
	t.Helper()
	env := &Environment{
		Dir:       dir,
		Engine:    engine,
		Watch:     watch,
		Runtime:   reactive.NewRuntime(),
		Scheduler: NewScheduler(SchedulerConfig{MaxInFlight: 4}),
	}
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func newTestHolder(t *testing.T) *Holder {
	t.Helper()
	h, err := Open(newEnv(t, t.TempDir(), common.EngineMaple, false), "test", 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func flush(t *testing.T, h *Holder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// roundTrip subscribes p, writes every value and checks that it arrives in the cell
func roundTrip[T any](t *testing.T, h *Holder, p *Property[T], values ...T) {
	t.Helper()
	p.Get(true)
	for _, v := range values {
		p.Set(v)
		flush(t, h)
		if got := p.Get(true); !p.codec.Equal(got, v) {
			t.Errorf("%s: set %v, got %v", p.Key(), v, got)
		}
	}
}

func TestDefaultOnFirstRead(t *testing.T) {
	h := newTestHolder(t)

	if v := Must(Bool(h, "b", true)).Get(true); v != true {
		t.Errorf("bool: got %v", v)
	}
	if v := Must(String(h, "s", "def")).Get(true); v != "def" {
		t.Errorf("string: got %q", v)
	}
	if v := Must(Int(h, "i", -3)).Get(true); v != -3 {
		t.Errorf("int: got %d", v)
	}
	if v := Must(Float(h, "f", 0.5)).Get(true); v != 0.5 {
		t.Errorf("float: got %v", v)
	}
	if v := Must(Long(h, "l", 1<<50)).Get(true); v != 1<<50 {
		t.Errorf("long: got %d", v)
	}
	if v := Must(Enum(h, "e", themeSystem, themeLight, themeDark)).Get(true); v != themeSystem {
		t.Errorf("enum: got %v", v)
	}
	if v := Must(StringSet(h, "set", []string{"x"})).Get(true); !reflect.DeepEqual(v, []string{"x"}) {
		t.Errorf("set: got %v", v)
	}
}

func TestRoundTrip(t *testing.T) {
	h := newTestHolder(t)

	roundTrip(t, h, Must(Bool(h, "b", false)), true, false)
	roundTrip(t, h, Must(String(h, "s", "def")), "hello", "", "ünïcødé")
	roundTrip(t, h, Must(Int(h, "i", 7)), 0, -1, math.MinInt32, math.MaxInt32)
	roundTrip(t, h, Must(Float(h, "f", 1)), 0, -2.25, math.MaxFloat32)
	roundTrip(t, h, Must(Long(h, "l", 7)), 0, -1, math.MinInt64, math.MaxInt64)
	roundTrip(t, h, Must(Enum(h, "e", themeLight, themeDark, themeSystem)), themeDark, themeSystem, themeLight)
	roundTrip(t, h, Must(StringSet(h, "set", []string{"def"})), []string{}, []string{"b", "a"}, []string{"only"})
}

func TestStringSetValuesAreCopies(t *testing.T) {
	h := newTestHolder(t)
	def := []string{"a", "b"}
	p := Must(StringSet(h, "set", def))

	def[0] = "changed"
	if got := p.Default(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("declaring must copy the default, got %v", got)
	}
	p.Default()[0] = "changed"
	if got := p.Get(false); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Default must return a copy, got %v", got)
	}
	p.Get(false)[0] = "changed"
	if got := p.Get(true); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Get must return a copy, got %v", got)
	}

	// an unset key decodes to the default, which must stay untouched
	p.Get(true)[1] = "changed"
	if got := p.Default(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("default changed through the cell: %v", got)
	}

	v := []string{"x"}
	task := p.Set(v)
	v[0] = "changed"
	if err := task.Wait(context.Background()); err != nil {
		t.Fatalf("set: %v", err)
	}
	flush(t, h)
	if got := p.Get(true); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("Set must copy its argument, got %v", got)
	}
}

func TestStringSetIsNormalized(t *testing.T) {
	h := newTestHolder(t)
	p := Must(StringSet(h, "set", nil))
	p.Get(true)

	p.Set([]string{"b", "a", "b"})
	flush(t, h)

	if got := p.Get(true); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestSetDoesNotTouchCell(t *testing.T) {
	sched := NewScheduler(SchedulerConfig{MaxInFlight: 1})
	h, err := Open(newEnv(t, t.TempDir(), common.EngineMaple, false), "test", 0o600, WithScheduler(sched))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p := Must(Int(h, "i", 1))
	p.Get(true)

	// occupy the only slot so the commit of Set has to wait
	block := make(chan struct{})
	sched.Submit(h.Name(), "blocker", func() error { <-block; return nil })

	task := p.Set(2)
	if task == nil || task.Key != "i" || task.Namespace != "test" {
		t.Fatalf("unexpected task %+v", task)
	}
	if got := p.Get(true); got != 1 {
		t.Errorf("Set must not change the cell, got %d", got)
	}

	close(block)
	flush(t, h)
	if got := p.Get(true); got != 2 {
		t.Errorf("expected 2 after flush, got %d", got)
	}
	if task.Err() != nil {
		t.Errorf("unexpected task error %v", task.Err())
	}
}

func TestLoopSuppression(t *testing.T) {
	h := newTestHolder(t)
	p := Must(Int(h, "i", 0))
	p.Get(true)

	p.Set(5)
	flush(t, h)
	version := p.Version()

	// equal value: the store does not notify at all
	p.Set(5)
	flush(t, h)

	// clear and re-put the same value: two notifications, both decode to 5
	if err := h.Store().Edit().Clear().PutInt("i", 5).Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	flush(t, h)

	// a notification whose value equals the cell
	p.onChange(h.Store(), store.Change{Key: "i"})

	if p.Version() != version {
		t.Errorf("expected no extra invalidation, version went from %d to %d", version, p.Version())
	}
	if p.Get(true) != 5 {
		t.Errorf("expected 5, got %d", p.Get(true))
	}
}

func TestReadOnlyIsolation(t *testing.T) {
	h := newTestHolder(t)
	if err := h.Store().Edit().PutString("s", "stored").Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	p := Must(String(h, "s", "def"))

	readOnlyRoot := reactive.NewSnapshot(true)
	writableRoot := reactive.NewSnapshot(false)
	for i := 0; i < 100; i++ {
		if v := p.Get(false); v != "def" {
			t.Fatalf("read-only read must return the default, got %q", v)
		}
		p.Value(readOnlyRoot)
		p.Value(readOnlyRoot.Nested(false))
		p.Value(writableRoot.Nested(true))
	}
	if p.Subscribed() {
		t.Errorf("read-only reads must not subscribe")
	}
	if h.subscriptions.Size() != 0 {
		t.Errorf("read-only reads must not register listeners")
	}
	if p.Version() != 0 {
		t.Errorf("read-only reads must not touch the cell")
	}

	if v := p.Value(writableRoot.Nested(false)); v != "stored" {
		t.Errorf("writable read must seed from the store, got %q", v)
	}
	if !p.Subscribed() || h.subscriptions.Size() != 1 {
		t.Errorf("writable read must subscribe once")
	}
}

func TestCrossPropertyIndependence(t *testing.T) {
	h := newTestHolder(t)
	a := Must(Int(h, "a", 0))
	b := Must(Int(h, "b", 0))
	a.Get(true)
	b.Get(true)

	var bChanges int
	b.Observe(func(int32) { bChanges++ })

	a.Set(1)
	a.Set(2)
	flush(t, h)

	if b.Version() != 0 || bChanges != 0 {
		t.Errorf("writes to a must not touch b (version %d, %d changes)", b.Version(), bChanges)
	}
	if b.Get(true) != 0 {
		t.Errorf("expected b to keep its default, got %d", b.Get(true))
	}
}

func TestExternalWriteVisibility(t *testing.T) {
	h := newTestHolder(t)
	p := Must(String(h, "s", "def"))
	p.Get(true)

	if err := h.Store().Edit().PutString("s", "external").Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	flush(t, h)
	if got := p.Get(true); got != "external" {
		t.Errorf("expected external, got %q", got)
	}

	if err := h.Store().Edit().Remove("s").Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	flush(t, h)
	if got := p.Get(true); got != "def" {
		t.Errorf("a removed key must fall back to the default, got %q", got)
	}
}

func TestListenerSkipsReadOnlyContext(t *testing.T) {
	h := newTestHolder(t)
	p := Must(Int(h, "i", 0))
	p.Get(true)

	h.Runtime().Enter(reactive.NewSnapshot(true), func() {
		if err := h.Store().Edit().PutInt("i", 9).Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
		flush(t, h)
	})
	if got := p.Get(true); got != 0 {
		t.Errorf("a notification in a read-only context must not update the cell, got %d", got)
	}

	if err := h.Store().Edit().PutInt("i", 10).Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	flush(t, h)
	if got := p.Get(true); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
}

func TestDecodeFallback(t *testing.T) {
	h := newTestHolder(t)
	err := h.Store().Edit().
		PutString("theme", "PURPLE").
		PutString("count", "twelve").
		PutInt("name", 3).
		Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if v := Must(Enum(h, "theme", themeDark, themeLight, themeSystem)).Get(true); v != themeDark {
		t.Errorf("unknown enum name must decode to the default, got %v", v)
	}
	if v := Must(Int(h, "count", 4)).Get(true); v != 4 {
		t.Errorf("wrong stored type must decode to the default, got %d", v)
	}
	if v := Must(String(h, "name", "def")).Get(true); v != "def" {
		t.Errorf("wrong stored type must decode to the default, got %q", v)
	}
}

func TestDuplicateKeys(t *testing.T) {
	h := newTestHolder(t)
	if _, err := Bool(h, "k", false); err != nil {
		t.Fatalf("first declaration: %v", err)
	}
	if _, err := Bool(h, "k", true); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := String(h, "k", ""); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for another type, got %v", err)
	}
	if _, err := Int(h, "", 0); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if want := []string{"k"}; !reflect.DeepEqual(h.Keys(), want) {
		t.Errorf("expected keys %v, got %v", want, h.Keys())
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Must must panic on a duplicate key")
		}
	}()
	Must(Long(h, "k", 0))
}

func TestConcurrentFirstReads(t *testing.T) {
	h := newTestHolder(t)
	p := Must(Int(h, "i", 0))

	handles := make([]store.ListenerHandle, 20)
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], _ = p.ensureSubscribed()
		}(i)
	}
	wg.Wait()

	for _, hd := range handles {
		if hd != handles[0] {
			t.Fatalf("expected one subscription, got handles %v", handles)
		}
	}
	if h.subscriptions.Size() != 1 {
		t.Errorf("expected one tracked subscription, got %d", h.subscriptions.Size())
	}
}

func TestHolderClose(t *testing.T) {
	h := newTestHolder(t)
	p := Must(Int(h, "i", 0))
	p.Get(true)

	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.subscriptions.Size() != 0 {
		t.Errorf("close must release all subscriptions")
	}

	late := Must(Int(h, "late", 1))
	if late.Get(true) != 1 || late.Subscribed() {
		t.Errorf("properties of a closed holder must not subscribe")
	}

	// writes still reach the store, the cell no longer follows
	p.Set(3)
	flush(t, h)
	if v, _ := h.Store().GetInt("i", 0); v != 3 {
		t.Errorf("expected 3 in the store, got %d", v)
	}
	if p.Get(true) != 0 {
		t.Errorf("closed holder must not update cells, got %d", p.Get(true))
	}
}

func TestHolderForwardsSubscriptions(t *testing.T) {
	h := newTestHolder(t)

	var mu sync.Mutex
	var seen []store.Change
	handle := h.Subscribe(func(_ store.IStore, c store.Change) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})

	Must(Bool(h, "b", false)).Set(true)
	flush(t, h)
	h.Unsubscribe(handle)
	Must(Bool(h, "c", false)).Set(true)
	flush(t, h)

	mu.Lock()
	defer mu.Unlock()
	if want := []store.Change{{Key: "b"}}; !reflect.DeepEqual(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestOpenReusesNamespace(t *testing.T) {
	env := newEnv(t, t.TempDir(), common.EngineMaple, false)

	h1, err := Open(env, "shared", 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h2, err := Open(env, "shared", 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if h1.Store() != h2.Store() {
		t.Errorf("expected both holders to share one store")
	}

	// keys are unique per holder, not per namespace
	a := Must(Int(h1, "k", 0))
	b := Must(Int(h2, "k", 0))
	a.Get(true)
	b.Get(true)
	a.Set(4)
	flush(t, h1)
	if b.Get(true) != 4 {
		t.Errorf("expected the other holder to see 4, got %d", b.Get(true))
	}

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if _, err := Open(env, name, 0o600); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestPersistAcrossEnvironments(t *testing.T) {
	for _, engine := range []common.EngineType{common.EngineMaple, common.EngineBadger} {
		t.Run(string(engine), func(t *testing.T) {
			dir := t.TempDir()

			env := newEnv(t, dir, engine, false)
			h, err := Open(env, "settings", 0o600)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			Must(StringSet(h, "tags", nil)).Set([]string{"go", "prefs"})
			Must(Enum(h, "theme", themeLight, themeDark)).Set(themeDark)
			if err := env.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			reopened, err := Open(newEnv(t, dir, engine, false), "settings", 0o600)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			if v := Must(StringSet(reopened, "tags", nil)).Get(true); !reflect.DeepEqual(v, []string{"go", "prefs"}) {
				t.Errorf("expected [go prefs], got %v", v)
			}
			if v := Must(Enum(reopened, "theme", themeLight, themeDark)).Get(true); v != themeDark {
				t.Errorf("expected DARK, got %v", v)
			}
		})
	}
}

func TestOtherProcessWriteIsVisible(t *testing.T) {
	dir := t.TempDir()

	watching, err := Open(newEnv(t, dir, common.EngineMaple, true), "settings", 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	writer, err := Open(newEnv(t, dir, common.EngineMaple, false), "settings", 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	p := Must(Long(watching, "counter", 0))
	p.Get(true)

	Must(Long(writer, "counter", 0)).Set(77)
	flush(t, writer)

	deadline := time.Now().Add(5 * time.Second)
	for p.Get(true) != 77 {
		if time.Now().After(deadline) {
			t.Fatalf("write of the other environment was not picked up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewEnvironmentFromConfig(t *testing.T) {
	conf := common.DefaultConfig()
	conf.Dir = t.TempDir()
	conf.Watch = false

	env, err := NewEnvironment(&conf)
	if err != nil {
		t.Fatalf("new environment: %v", err)
	}
	defer env.Close()

	h, err := Open(env, conf.Namespace, conf.Mode)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p := Must(Float(h, "ratio", 1))
	p.Get(true)
	p.Set(0.25)
	flush(t, h)
	if p.Get(true) != 0.25 {
		t.Errorf("expected 0.25, got %v", p.Get(true))
	}

	conf.MaxInFlight = 0
	if _, err := NewEnvironment(&conf); err == nil {
		t.Errorf("expected an invalid configuration to be rejected")
	}
}
