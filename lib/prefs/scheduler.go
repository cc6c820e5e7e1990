package prefs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

var schedLog = logger.GetLogger("scheduler")

var (
	writesSubmitted = metrics.NewCounter("dprefs_writes_submitted_total")
	writesCommitted = metrics.NewCounter("dprefs_writes_committed_total")
	writesFailed    = metrics.NewCounter("dprefs_writes_failed_total")
	commitDuration  = metrics.NewHistogram("dprefs_commit_duration_seconds")
)

// DefaultMaxInFlight is the commit limit of the default scheduler
const DefaultMaxInFlight = 16

// SchedulerConfig configures a Scheduler
type SchedulerConfig struct {
	// MaxInFlight limits how many tasks run at once. Zero or less means no limit.
	// Submit never blocks on the limit, tasks wait in the background instead.
	MaxInFlight int64
}

// Task is one submitted write. Waiting for it is optional.
type Task struct {
	ID        uuid.UUID
	Namespace string
	Key       string

	done chan struct{}
	err  error
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error of a finished task, nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task has finished or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler runs write tasks in the background. There is no ordering between
// tasks, no retry and no batching.
//
// Thread-safety: all methods are safe for concurrent use.
type Scheduler struct {
	sem   *semaphore.Weighted // nil without limit
	tasks *xsync.MapOf[uuid.UUID, *Task]
}

var (
	defaultScheduler     *Scheduler
	defaultSchedulerOnce sync.Once
)

// DefaultScheduler returns the process-wide scheduler.
func DefaultScheduler() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewScheduler(SchedulerConfig{MaxInFlight: DefaultMaxInFlight})
	})
	return defaultScheduler
}

// NewScheduler creates a scheduler
func NewScheduler(conf SchedulerConfig) *Scheduler {
	s := &Scheduler{tasks: xsync.NewMapOf[uuid.UUID, *Task]()}
	if conf.MaxInFlight > 0 {
		s.sem = semaphore.NewWeighted(conf.MaxInFlight)
	}
	return s
}

// Submit runs fn on its own goroutine and returns immediately.
func (s *Scheduler) Submit(namespace, key string, fn func() error) *Task {
	t := &Task{
		ID:        uuid.New(),
		Namespace: namespace,
		Key:       key,
		done:      make(chan struct{}),
	}
	s.tasks.Store(t.ID, t)
	writesSubmitted.Inc()

	go s.run(t, fn)
	return t
}

func (s *Scheduler) run(t *Task, fn func() error) {
	defer func() {
		s.tasks.Delete(t.ID)
		close(t.done)
	}()

	if s.sem != nil {
		// never fails with a background context
		_ = s.sem.Acquire(context.Background(), 1)
		defer s.sem.Release(1)
	}

	start := time.Now()
	t.err = call(fn)
	commitDuration.UpdateDuration(start)

	if t.err != nil {
		writesFailed.Inc()
		schedLog.Errorf("write of %q in %q failed: %v", t.Key, t.Namespace, t.err)
		return
	}
	writesCommitted.Inc()
}

// call runs fn and turns a panic into an error
func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write panicked: %v", r)
		}
	}()
	return fn()
}

// Pending returns the number of unfinished tasks.
func (s *Scheduler) Pending() int {
	return s.tasks.Size()
}

// Flush waits for all tasks submitted before the call. It returns the first
// task error, or ctx.Err() if ctx ends first.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.flush(ctx, func(*Task) bool { return true })
}

// FlushNamespace is Flush restricted to tasks of one namespace.
func (s *Scheduler) FlushNamespace(ctx context.Context, namespace string) error {
	return s.flush(ctx, func(t *Task) bool { return t.Namespace == namespace })
}

func (s *Scheduler) flush(ctx context.Context, match func(*Task) bool) error {
	var pending []*Task
	s.tasks.Range(func(_ uuid.UUID, t *Task) bool {
		if match(t) {
			pending = append(pending, t)
		}
		return true
	})

	var first error
	for _, t := range pending {
		if err := t.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}
