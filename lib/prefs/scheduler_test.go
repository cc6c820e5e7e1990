package prefs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func flushWithin(t *testing.T, s *Scheduler) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Flush(ctx)
}

func TestSchedulerFlushWaitsForTasks(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		s.Submit("ns", "k", func() error {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}
	if err := flushWithin(t, s); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if done.Load() != 20 {
		t.Errorf("expected 20 finished tasks, got %d", done.Load())
	}
	if s.Pending() != 0 {
		t.Errorf("expected no pending tasks, got %d", s.Pending())
	}
}

func TestSchedulerTaskError(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	boom := errors.New("boom")

	failedBefore := writesFailed.Get()
	task := s.Submit("ns", "k", func() error { return boom })
	if err := task.Wait(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected boom from Wait, got %v", err)
	}
	if !errors.Is(task.Err(), boom) {
		t.Errorf("expected boom from Err, got %v", task.Err())
	}
	if writesFailed.Get() <= failedBefore {
		t.Errorf("expected the failed counter to grow")
	}

	s.Submit("ns", "k", func() error { return boom })
	if err := flushWithin(t, s); !errors.Is(err, boom) {
		t.Errorf("expected flush to report boom, got %v", err)
	}
}

func TestSchedulerPanicBecomesError(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	task := s.Submit("ns", "k", func() error { panic("boom") })
	if err := task.Wait(context.Background()); err == nil {
		t.Errorf("expected an error from a panicking task")
	}
}

func TestSchedulerMaxInFlight(t *testing.T) {
	s := NewScheduler(SchedulerConfig{MaxInFlight: 2})

	release := make(chan struct{})
	var running, peak atomic.Int32
	submitted := make(chan struct{})

	go func() {
		for i := 0; i < 10; i++ {
			s.Submit("ns", "k", func() error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return nil
			})
		}
		close(submitted)
	}()

	select {
	case <-submitted:
	case <-time.After(5 * time.Second):
		t.Fatalf("Submit must not block on the in-flight limit")
	}

	time.Sleep(50 * time.Millisecond)
	if s.Pending() != 10 {
		t.Errorf("expected 10 pending tasks, got %d", s.Pending())
	}
	close(release)

	if err := flushWithin(t, s); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestSchedulerFlushNamespace(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	block := make(chan struct{})
	defer close(block)

	s.Submit("other", "k", func() error { <-block; return nil })
	s.Submit("mine", "k", func() error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.FlushNamespace(ctx, "mine"); err != nil {
		t.Errorf("flushing one namespace must not wait for others: %v", err)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if err := s.Flush(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDefaultSchedulerIsShared(t *testing.T) {
	if DefaultScheduler() != DefaultScheduler() {
		t.Errorf("expected one process-wide scheduler")
	}
}
