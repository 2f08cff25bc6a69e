package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T, configs map[Class]PoolConfig) *Manager {
	t.Helper()

	m, err := NewManager(configs, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.tick = 5 * time.Millisecond
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAcquireIsMemoized(t *testing.T) {
	m := newTestManager(t, DefaultPools())

	var wg sync.WaitGroup
	got := make([]*Executor, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ex, err := m.Acquire(ClassLogin)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			got[i] = ex
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(got); i++ {
		if got[i] != got[0] {
			t.Fatal("Acquire must return the same executor for a class")
		}
	}
	if len(m.Stats()) != 1 {
		t.Fatalf("expected exactly one pool, got %d", len(m.Stats()))
	}
}

func TestAcquireUnknownClassUsesDefault(t *testing.T) {
	m := newTestManager(t, map[Class]PoolConfig{
		ClassDefault: {Core: 2, Max: 4, Queue: 8, Overload: CallerRuns},
	})
	ex, err := m.Acquire(Class("reports"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s := ex.Stats(); s.Core != 2 || s.Max != 4 {
		t.Fatalf("expected default sizing, got %+v", s)
	}
}

func TestRejectPolicyWhenSaturated(t *testing.T) {
	m := newTestManager(t, map[Class]PoolConfig{
		ClassMail: {Core: 1, Max: 1, Queue: 0, Overload: Reject},
	})
	ex, _ := m.Acquire(ClassMail)

	release := make(chan struct{})
	started := make(chan struct{})
	if err := ex.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	<-started

	if err := ex.Submit(func() {}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	close(release)

	if ex.Stats().Rejected != 1 {
		t.Fatalf("expected one rejection, got %d", ex.Stats().Rejected)
	}
}

func TestCallerRunsPolicyRunsInline(t *testing.T) {
	m := newTestManager(t, map[Class]PoolConfig{
		ClassLogin: {Core: 1, Max: 1, Queue: 0, Overload: CallerRuns},
	})
	ex, _ := m.Acquire(ClassLogin)

	release := make(chan struct{})
	started := make(chan struct{})
	_ = ex.Submit(func() { close(started); <-release })
	<-started
	defer close(release)

	ran := false
	if err := ex.Submit(func() { ran = true }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !ran {
		t.Fatal("caller-runs task must complete before Submit returns")
	}
	if ex.Stats().CallerRuns != 1 {
		t.Fatalf("expected one caller-run, got %d", ex.Stats().CallerRuns)
	}
}

func TestBacklogHoldsTasksUntilWorkerFree(t *testing.T) {
	m := newTestManager(t, map[Class]PoolConfig{
		ClassOTP: {Core: 1, Max: 1, Queue: 2, Overload: Reject},
	})
	ex, _ := m.Acquire(ClassOTP)

	release := make(chan struct{})
	started := make(chan struct{})
	_ = ex.Submit(func() { close(started); <-release })
	<-started

	var done atomic.Int32
	for i := 0; i < 2; i++ {
		if err := ex.Submit(func() { done.Add(1) }); err != nil {
			t.Fatalf("queued Submit %d: %v", i, err)
		}
	}
	if err := ex.Submit(func() {}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejection once backlog is full, got %v", err)
	}
	if done.Load() != 0 {
		t.Fatal("queued tasks must wait for a worker")
	}

	close(release)
	waitFor(t, func() bool { return done.Load() == 2 })
}

func TestPoolGrowsToMaxWhenBacklogFull(t *testing.T) {
	m := newTestManager(t, map[Class]PoolConfig{
		ClassRegistration: {Core: 1, Max: 2, Queue: 0, Overload: Reject},
	})
	ex, _ := m.Acquire(ClassRegistration)

	release := make(chan struct{})
	defer close(release)

	first := make(chan struct{})
	_ = ex.Submit(func() { close(first); <-release })
	<-first

	second := make(chan struct{})
	if err := ex.Submit(func() { close(second); <-release }); err != nil {
		t.Fatalf("expected growth beyond core, got %v", err)
	}
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second task did not run concurrently")
	}
	if ex.Stats().Capacity != 2 {
		t.Fatalf("expected capacity 2, got %d", ex.Stats().Capacity)
	}
}

func TestShutdownDrainsAndCloses(t *testing.T) {
	m, err := NewManager(map[Class]PoolConfig{
		ClassUserOperations: {Core: 1, Max: 1, Queue: 4, Overload: Reject},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ex, _ := m.Acquire(ClassUserOperations)

	release := make(chan struct{})
	started := make(chan struct{})
	_ = ex.Submit(func() { close(started); <-release })
	<-started

	var done atomic.Int32
	for i := 0; i < 3; i++ {
		_ = ex.Submit(func() { done.Add(1) })
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if done.Load() != 3 {
		t.Fatalf("expected queued tasks to drain, got %d", done.Load())
	}
	if err := ex.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
	if _, err := m.Acquire(ClassLogin); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Acquire, got %v", err)
	}
	if m.Healthy() {
		t.Fatal("closed manager must not report healthy")
	}
}

func TestPanicIsContained(t *testing.T) {
	m := newTestManager(t, map[Class]PoolConfig{
		ClassCache: {Core: 1, Max: 1, Queue: 1, Overload: Reject},
	})
	ex, _ := m.Acquire(ClassCache)

	_ = ex.Submit(func() { panic("bad task") })
	waitFor(t, func() bool { return ex.Stats().Panics == 1 })

	ran := make(chan struct{})
	if err := ex.Submit(func() { close(ran) }); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	<-ran
}

func TestParseOverload(t *testing.T) {
	if o, err := ParseOverload("Caller-Runs"); err != nil || o != CallerRuns {
		t.Fatalf("expected CallerRuns, got %v %v", o, err)
	}
	if o, err := ParseOverload("reject"); err != nil || o != Reject {
		t.Fatalf("expected Reject, got %v %v", o, err)
	}
	if _, err := ParseOverload("drop"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(map[Class]PoolConfig{ClassLogin: {Core: 2, Max: 1}}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected validation error for Max < Core")
	}
}
