package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testPolicy(name string) Policy {
	return Policy{
		Name:             name,
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		AttemptTimeout:   50 * time.Millisecond,
		FailureRatio:     0.5,
		MinRequests:      4,
		Window:           time.Minute,
		OpenTimeout:      time.Minute,
		HalfOpenRequests: 1,
	}
}

var errBoom = errors.New("boom")

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	g := NewGuard(testPolicy("db"), zerolog.Nop())
	var calls atomic.Int32

	v, err := Execute(context.Background(), g, "x", func(context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	}, nil)
	if err != nil || v != 7 {
		t.Fatalf("expected (7, nil), got (%d, %v)", v, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	g := NewGuard(testPolicy("db"), zerolog.Nop())
	var calls atomic.Int32

	v, err := Execute(context.Background(), g, "x", func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errBoom
		}
		return "ok", nil
	}, func(error) (string, error) {
		t.Fatal("fallback must not run when a retry succeeds")
		return "", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("expected (ok, nil), got (%q, %v)", v, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestExecuteFallbackAfterExhaustion(t *testing.T) {
	g := NewGuard(testPolicy("cache"), zerolog.Nop())
	var calls atomic.Int32
	var cause error

	v, err := Execute(context.Background(), g, "x", func(context.Context) (int64, error) {
		calls.Add(1)
		return 0, errBoom
	}, func(c error) (int64, error) {
		cause = c
		return -1, nil
	})
	if err != nil || v != -1 {
		t.Fatalf("expected fallback (-1, nil), got (%d, %v)", v, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected MaxAttempts calls, got %d", calls.Load())
	}
	if !errors.Is(cause, errBoom) {
		t.Fatalf("expected fallback cause boom, got %v", cause)
	}
	if g.Fallbacks() != 1 {
		t.Fatalf("expected 1 fallback, got %d", g.Fallbacks())
	}
}

func TestExecuteNilFallbackReturnsCause(t *testing.T) {
	g := NewGuard(testPolicy("mail"), zerolog.Nop())
	_, err := Execute(context.Background(), g, "x", func(context.Context) (struct{}, error) {
		return struct{}{}, errBoom
	}, nil)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestExecutePermanentSkipsRetryAndFallback(t *testing.T) {
	g := NewGuard(testPolicy("db"), zerolog.Nop())
	var calls atomic.Int32
	errConflict := errors.New("conflict")

	_, err := Execute(context.Background(), g, "x", func(context.Context) (int, error) {
		calls.Add(1)
		return 0, Permanent(errConflict)
	}, func(error) (int, error) {
		t.Fatal("fallback must not run for permanent errors")
		return 0, nil
	})
	if err != errConflict {
		t.Fatalf("expected unwrapped conflict error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
	if g.State() != "closed" {
		t.Fatalf("permanent errors must not trip the breaker, state=%s", g.State())
	}
}

func TestExecuteOpenCircuitFailsFast(t *testing.T) {
	p := testPolicy("db")
	p.MaxAttempts = 1
	g := NewGuard(p, zerolog.Nop())

	failing := func(context.Context) (int, error) { return 0, errBoom }
	for i := 0; i < int(p.MinRequests); i++ {
		_, _ = Execute(context.Background(), g, "x", failing, nil)
	}
	if g.State() != "open" {
		t.Fatalf("expected open breaker, got %s", g.State())
	}

	var called bool
	var cause error
	_, _ = Execute(context.Background(), g, "x", func(context.Context) (int, error) {
		called = true
		return 1, nil
	}, func(c error) (int, error) {
		cause = c
		return 0, nil
	})
	if called {
		t.Fatal("operation must not run while the circuit is open")
	}
	if !errors.Is(cause, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen cause, got %v", cause)
	}
}

func TestExecuteAttemptTimeout(t *testing.T) {
	p := testPolicy("cache")
	p.AttemptTimeout = 5 * time.Millisecond
	p.MaxAttempts = 2
	g := NewGuard(p, zerolog.Nop())

	var calls atomic.Int32
	v, err := Execute(context.Background(), g, "x", func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-ctx.Done()
		return 0, ctx.Err()
	}, func(error) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("expected fallback 42, got (%d, %v)", v, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected each attempt to time out and retry, got %d calls", calls.Load())
	}
}

func TestExecuteCancelledCallerUsesFallback(t *testing.T) {
	g := NewGuard(testPolicy("db"), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := Execute(ctx, g, "x", func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	}, func(error) (int, error) { return 9, nil })
	if err != nil || v != 9 {
		t.Fatalf("expected fallback 9, got (%d, %v)", v, err)
	}
}

func TestRegistryIsolatesBreakers(t *testing.T) {
	policies := map[string]Policy{
		PolicyDatabase: testPolicy(PolicyDatabase),
		PolicyCache:    testPolicy(PolicyCache),
	}
	for name, p := range policies {
		p.MaxAttempts = 1
		policies[name] = p
	}
	r, err := NewRegistry(policies, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	cache, _ := r.Guard(PolicyCache)
	for i := 0; i < 4; i++ {
		_, _ = Execute(context.Background(), cache, "x", func(context.Context) (int, error) { return 0, errBoom }, nil)
	}

	states := r.States()
	if states[PolicyCache] != "open" {
		t.Fatalf("expected cache breaker open, got %s", states[PolicyCache])
	}
	if states[PolicyDatabase] != "closed" {
		t.Fatalf("database breaker must be unaffected, got %s", states[PolicyDatabase])
	}

	if _, err := r.Guard("queue"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestDefaultPoliciesValid(t *testing.T) {
	for name, p := range DefaultPolicies() {
		if err := p.Validate(); err != nil {
			t.Fatalf("default policy %s invalid: %v", name, err)
		}
	}
}
