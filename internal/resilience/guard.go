package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is the cause handed to fallbacks when the breaker refused the call.
	ErrCircuitOpen = errors.New("circuit open")
)

// Fallback produces the degraded result for a call whose retries were
// exhausted or whose breaker was open.
type Fallback[T any] func(cause error) (T, error)

// Guard applies one Policy: bounded retries with exponential backoff inside a
// dedicated circuit breaker.
type Guard struct {
	policy    Policy
	breaker   *gobreaker.TwoStepCircuitBreaker[struct{}]
	log       zerolog.Logger
	fallbacks atomic.Uint64
}

// NewGuard builds a guard for p. Callers are expected to have validated p.
func NewGuard(p Policy, log zerolog.Logger) *Guard {
	g := &Guard{
		policy: p,
		log:    log.With().Str("component", "resilience").Str("policy", p.Name).Logger(),
	}

	g.breaker = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        p.Name,
		MaxRequests: p.HalfOpenRequests,
		Interval:    p.Window,
		Timeout:     p.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < p.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})

	return g
}

// Name returns the policy name.
func (g *Guard) Name() string { return g.policy.Name }

// State returns the breaker state: closed, half-open or open.
func (g *Guard) State() string { return g.breaker.State().String() }

// Fallbacks returns how many calls were answered by their fallback.
func (g *Guard) Fallbacks() uint64 { return g.fallbacks.Load() }

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as a definitive answer from the dependency (a duplicate
// key, a constraint violation). Permanent errors are returned to the caller
// as-is: they are not retried, do not count as breaker failures, and never
// reach the fallback.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Execute runs op under g. subject identifies the call in logs and must
// already be masked. When retries are exhausted, the breaker is open, or ctx
// ends first, the fallback result is returned in place of the failure. A nil
// fallback returns the cause.
func Execute[T any](ctx context.Context, g *Guard, subject string, op func(context.Context) (T, error), fallback Fallback[T]) (T, error) {
	var (
		zero     T
		result   T
		attempts int
	)

	operation := func() error {
		attempts++

		done, err := g.breaker.Allow()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
		}

		actx, cancel := g.attemptContext(ctx)
		v, err := op(actx)
		cancel()

		var perm *permanentError
		if errors.As(err, &perm) {
			done(true)
			return backoff.Permanent(err)
		}

		// A caller that went away is not a dependency fault.
		done(err == nil || ctx.Err() != nil)
		if err != nil {
			return err
		}
		result = v
		return nil
	}

	err := backoff.Retry(operation, g.newBackOff(ctx))
	if err == nil {
		return result, nil
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return zero, perm.err
	}

	g.fallbacks.Add(1)
	g.log.Warn().
		Str("subject", subject).
		Int("attempts", attempts).
		Str("state", g.State()).
		Err(err).
		Msg("dependency call degraded to fallback")

	if fallback == nil {
		return zero, err
	}
	return fallback(err)
}

func (g *Guard) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.policy.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.policy.AttemptTimeout)
}

func (g *Guard) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.policy.InitialBackoff
	b.MaxInterval = g.policy.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	retries := uint64(0)
	if g.policy.MaxAttempts > 1 {
		retries = uint64(g.policy.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}
