package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/ValentinKolb/dPrefs/lib/db"
	"github.com/ValentinKolb/dPrefs/lib/db/engines/badgerdb"
	"github.com/ValentinKolb/dPrefs/lib/db/engines/maple"
	"github.com/ValentinKolb/dPrefs/lib/reactive"
	"github.com/ValentinKolb/dPrefs/lib/store"
	"github.com/ValentinKolb/dPrefs/lib/store/lstore"
)

// Environment is the application context namespaces are opened in. Each
// namespace is opened once per environment and shared by all its holders.
//
// Dir must be set. NewEnvironment fills all fields from a configuration.
type Environment struct {
	// Dir holds all namespaces of the environment
	Dir string
	// Engine backs newly opened namespaces
	Engine common.EngineType
	// Watch reloads maple namespaces rewritten by other processes
	Watch bool
	// SyncWrites fsyncs every badger transaction
	SyncWrites bool
	// Runtime is the reactive runtime handed to holders
	Runtime *reactive.Runtime
	// Scheduler runs the writes of all holders, DefaultScheduler if nil
	Scheduler *Scheduler

	mu     sync.Mutex
	stores map[string]store.IStore
	closed bool
}

// NewEnvironment creates an environment from a validated configuration.
// The scheduler is sized by conf.MaxInFlight.
func NewEnvironment(conf *common.Config) (*Environment, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Environment{
		Dir:        conf.Dir,
		Engine:     conf.Engine,
		Watch:      conf.Watch,
		SyncWrites: conf.SyncWrites,
		Runtime:    reactive.NewRuntime(),
		Scheduler:  NewScheduler(SchedulerConfig{MaxInFlight: conf.MaxInFlight}),
		stores:     make(map[string]store.IStore),
	}, nil
}

func (env *Environment) runtime() *reactive.Runtime {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.Runtime == nil {
		env.Runtime = reactive.NewRuntime()
	}
	return env.Runtime
}

func (env *Environment) scheduler() *Scheduler {
	if env.Scheduler == nil {
		return DefaultScheduler()
	}
	return env.Scheduler
}

// validNamespace rejects names that cannot be used as a file name
func validNamespace(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid namespace name %q", name)
	}
	return nil
}

// namespace returns the open store of name, opening it on first use. The
// mode of the first open wins.
func (env *Environment) namespace(name string, mode os.FileMode) (store.IStore, error) {
	if err := validNamespace(name); err != nil {
		return nil, err
	}

	env.mu.Lock()
	defer env.mu.Unlock()

	if env.closed {
		return nil, store.ErrClosed
	}
	if env.stores == nil {
		env.stores = make(map[string]store.IStore)
	}
	if s, ok := env.stores[name]; ok {
		return s, nil
	}

	factory, err := env.factory(name)
	if err != nil {
		return nil, err
	}
	s, err := lstore.Open(lstore.Config{
		Name:    name,
		Dir:     env.Dir,
		Mode:    mode,
		Factory: factory,
		Watch:   env.Watch,
	})
	if err != nil {
		return nil, err
	}
	env.stores[name] = s
	log.Infof("namespace %q opened (engine %s)", name, env.Engine)
	return s, nil
}

// factory returns the engine factory for namespace name
func (env *Environment) factory(name string) (store.DBFactory, error) {
	switch env.Engine {
	case common.EngineMaple, "":
		return func() (db.KVDB, error) {
			return maple.NewMapleDB(nil), nil
		}, nil
	case common.EngineBadger:
		dir := filepath.Join(env.Dir, name+".badger")
		return func() (db.KVDB, error) {
			return badgerdb.NewBadgerDB(badgerdb.DBOptions{Dir: dir, SyncWrites: env.SyncWrites})
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", env.Engine)
	}
}

// Close waits for the pending writes of every namespace, then closes them.
func (env *Environment) Close() error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.closed {
		return nil
	}
	env.closed = true

	var errs []error
	for name, s := range env.stores {
		if err := env.scheduler().FlushNamespace(context.Background(), name); err != nil {
			log.Warningf("namespace %q closed with failed writes: %v", name, err)
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	env.stores = nil
	return errors.Join(errs...)
}
