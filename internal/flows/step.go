package flows

import (
	"context"

	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/rs/zerolog"
)

// Outcome tags how a pipeline stage ended.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeRejected
	OutcomeUnavailable
)

// Reason names a business rejection. Reasons are safe to show end users.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInvalidCredentials Reason = "invalid-credentials"
	ReasonEmailNotVerified   Reason = "email-not-verified"
	ReasonAccountRevoked     Reason = "account-revoked"
	ReasonEmailExists        Reason = "email-exists"
	ReasonNotFound           Reason = "not-found"
	ReasonAlreadyVerified    Reason = "already-verified"
	ReasonInvalidOrExpired   Reason = "invalid-or-expired"
	ReasonRateLimited        Reason = "rate-limited"
	ReasonInvalidRequest     Reason = "invalid-request"
	ReasonUnavailable        Reason = "service-unavailable"
)

// Step is the tagged result every stage returns instead of an error.
type Step[T any] struct {
	Outcome Outcome
	Reason  Reason
	Value   T
	// Warning carries a degraded-but-successful note, such as a failed mail
	// hand-off after registration.
	Warning string
	// Cause is the dependency failure behind OutcomeUnavailable. Never shown
	// to callers.
	Cause error
}

func OK[T any](v T) Step[T] {
	return Step[T]{Outcome: OutcomeOK, Value: v}
}

func Reject[T any](reason Reason) Step[T] {
	return Step[T]{Outcome: OutcomeRejected, Reason: reason}
}

func Unavailable[T any](cause error) Step[T] {
	return Step[T]{Outcome: OutcomeUnavailable, Reason: ReasonUnavailable, Cause: cause}
}

// Terminal reports whether the pipeline must stop at s.
func (s Step[T]) Terminal() bool {
	return s.Outcome != OutcomeOK
}

// carry re-types a terminal step so it can flow through later stages.
func carry[A, B any](s Step[A]) Step[B] {
	return Step[B]{Outcome: s.Outcome, Reason: s.Reason, Warning: s.Warning, Cause: s.Cause}
}

// Acquirer resolves the executor for a workload class.
type Acquirer func(workers.Class) (*workers.Executor, error)

// begin schedules the first stage of a pipeline on the pool for class.
func begin[T any](ctx context.Context, acquire Acquirer, class workers.Class, fn func(context.Context) Step[T]) *workers.Future[Step[T]] {
	ex, err := acquire(class)
	if err != nil {
		return workers.Completed(Unavailable[T](err), nil)
	}
	return workers.Go(ctx, ex, func(ctx context.Context) (Step[T], error) {
		return fn(ctx), nil
	})
}

// then chains fn on the pool for class. A terminal predecessor passes through
// without scheduling anything.
func then[A, B any](ctx context.Context, acquire Acquirer, class workers.Class, prev *workers.Future[Step[A]], fn func(context.Context, A) Step[B]) *workers.Future[Step[B]] {
	ex, err := acquire(class)
	if err != nil {
		return workers.Completed(Unavailable[B](err), nil)
	}
	return workers.Then(ctx, ex, prev, func(ctx context.Context, s Step[A]) (Step[B], error) {
		if s.Terminal() {
			return carry[A, B](s), nil
		}
		out := fn(ctx, s.Value)
		if out.Warning == "" {
			out.Warning = s.Warning
		}
		return out, nil
	})
}

// settle waits for the pipeline. Pool rejection, panics and cancellation all
// become OutcomeUnavailable.
func settle[T any](ctx context.Context, f *workers.Future[Step[T]]) Step[T] {
	s, err := f.Await(ctx)
	if err != nil {
		return Unavailable[T](err)
	}
	return s
}

// detach runs fn on the pool for class without tying it to the caller's
// lifetime. Failures inside fn are logged and never reach the caller; the
// returned error only reports that the task could not be handed off.
func detach(ctx context.Context, acquire Acquirer, class workers.Class, log zerolog.Logger, task string, fn func(context.Context) error) error {
	ex, err := acquire(class)
	if err != nil {
		log.Warn().Err(err).Str("pool", string(class)).Str("task", task).Msg("background task not scheduled")
		return err
	}
	ctx = context.WithoutCancel(ctx)
	err = ex.Submit(func() {
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Str("pool", string(class)).Str("task", task).Msg("background task failed")
		}
	})
	if err != nil {
		log.Warn().Err(err).Str("pool", string(class)).Str("task", task).Msg("background task rejected")
	}
	return err
}
