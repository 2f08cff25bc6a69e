package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/rs/zerolog"
)

var errDeliveryNotConfigured = errors.New("code delivery not configured")

// CodeDelivery issues a code into the code store and mails it.
type CodeDelivery struct {
	// Issue stores a fresh code for email and returns it.
	Issue func(ctx context.Context, email string) (string, error)
	// Send delivers code to email. It runs on the mail pool.
	Send func(ctx context.Context, email, code string) error
}

// deliverCode issues synchronously and hands the send to the mail pool. Only
// an issuance failure or a refused hand-off is reported.
func deliverCode(ctx context.Context, acquire Acquirer, log zerolog.Logger, d CodeDelivery, email string) error {
	if d.Issue == nil || d.Send == nil {
		return errDeliveryNotConfigured
	}
	code, err := d.Issue(ctx, email)
	if err != nil {
		return err
	}
	return detach(ctx, acquire, workers.ClassMail, log, "send-verification-code", func(ctx context.Context) error {
		return d.Send(ctx, email, code)
	})
}

// CodeDispatch is the flow-local result of a code request.
type CodeDispatch struct {
	Email     string
	ExpiresAt time.Time
}

type VerificationMetrics struct {
	CodeRequested   int
	CodeRateLimited int
	CodeVerified    int
	CodeRejected    int
	Unavailable     int
}

type VerificationEvents struct {
	CodeRequested string
	CodeVerified  string
	CodeRejected  string
}

// VerificationDeps captures code request and confirm dependencies.
type VerificationDeps struct {
	CodeTTL time.Duration

	Acquire Acquirer
	Log     zerolog.Logger
	Now     func() time.Time

	// CheckThrottle reports limited=true when the caller exceeded the
	// request window.
	CheckThrottle func(ctx context.Context, email string) (limited bool, err error)

	FindByEmail AccountFinder
	SetStatus   func(ctx context.Context, accountID string, status AccountStatus) error

	Delivery CodeDelivery

	// ConsumeCode deletes the live code when submitted matches it, in one
	// atomic step, and reports whether it did.
	ConsumeCode func(ctx context.Context, email, submitted string) (bool, error)

	ResetFailures func(context.Context, string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics VerificationMetrics
	Events  VerificationEvents
}

// RunIssueCode sends a fresh verification code to an unverified account.
func RunIssueCode(ctx context.Context, email string, deps VerificationDeps) Step[CodeDispatch] {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Acquire == nil || deps.FindByEmail == nil {
		return Unavailable[CodeDispatch](ErrFlowNotReady)
	}

	masked := mask.Email(email)

	throttled := begin(ctx, deps.Acquire, workers.ClassOTP, func(ctx context.Context) Step[struct{}] {
		if deps.CheckThrottle == nil {
			return OK(struct{}{})
		}
		limited, err := deps.CheckThrottle(ctx, email)
		if err != nil {
			return Unavailable[struct{}](err)
		}
		if limited {
			deps.MetricInc(deps.Metrics.CodeRateLimited)
			return Reject[struct{}](ReasonRateLimited)
		}
		return OK(struct{}{})
	})

	eligible := then(ctx, deps.Acquire, workers.ClassUserOperations, throttled, func(ctx context.Context, _ struct{}) Step[AccountRecord] {
		account, found, err := deps.FindByEmail(ctx, email)
		if err != nil {
			return Unavailable[AccountRecord](err)
		}
		if !found {
			return Reject[AccountRecord](ReasonNotFound)
		}
		switch account.Status {
		case StatusUnverified:
			return OK(account)
		case StatusNormal:
			return Reject[AccountRecord](ReasonAlreadyVerified)
		default:
			return Reject[AccountRecord](ReasonAccountRevoked)
		}
	})

	sent := then(ctx, deps.Acquire, workers.ClassOTP, eligible, func(ctx context.Context, account AccountRecord) Step[CodeDispatch] {
		if err := deliverCode(ctx, deps.Acquire, deps.Log, deps.Delivery, account.Email); err != nil {
			return Unavailable[CodeDispatch](err)
		}
		deps.MetricInc(deps.Metrics.CodeRequested)
		deps.EmitAudit(ctx, deps.Events.CodeRequested, true, account.ID, ReasonNone, func() map[string]string {
			return map[string]string{"email": masked}
		})
		return OK(CodeDispatch{
			Email:     account.Email,
			ExpiresAt: now(deps.Now).Add(deps.CodeTTL),
		})
	})

	result := settle(ctx, sent)
	if result.Outcome == OutcomeUnavailable {
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.Log.Error().Err(result.Cause).Str("email", masked).Msg("verification code request unavailable")
	}
	return result
}

// RunVerifyCode consumes a matching code and activates the account. Every
// negative answer is ReasonInvalidOrExpired so the response does not reveal
// whether the address is registered.
func RunVerifyCode(ctx context.Context, email, code string, deps VerificationDeps) Step[AccountRecord] {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Acquire == nil ||
		deps.ConsumeCode == nil ||
		deps.FindByEmail == nil ||
		deps.SetStatus == nil {
		return Unavailable[AccountRecord](ErrFlowNotReady)
	}

	masked := mask.Email(email)
	invalid := func(ctx context.Context, accountID, detail string) {
		deps.MetricInc(deps.Metrics.CodeRejected)
		deps.EmitAudit(ctx, deps.Events.CodeRejected, false, accountID, ReasonInvalidOrExpired, func() map[string]string {
			return map[string]string{
				"email":  masked,
				"reason": detail,
			}
		})
	}

	consumed := begin(ctx, deps.Acquire, workers.ClassOTP, func(ctx context.Context) Step[struct{}] {
		// The code is gone before the account is touched, so it cannot be
		// replayed even if activation fails.
		consumed, err := deps.ConsumeCode(ctx, email, code)
		if err != nil {
			return Unavailable[struct{}](err)
		}
		if !consumed {
			invalid(ctx, "", "code_mismatch")
			return Reject[struct{}](ReasonInvalidOrExpired)
		}
		return OK(struct{}{})
	})

	activated := then(ctx, deps.Acquire, workers.ClassUserOperations, consumed, func(ctx context.Context, _ struct{}) Step[AccountRecord] {
		account, found, err := deps.FindByEmail(ctx, email)
		if err != nil {
			return Unavailable[AccountRecord](err)
		}
		if !found || account.Status == StatusRevoked {
			invalid(ctx, account.ID, "account_ineligible")
			return Reject[AccountRecord](ReasonInvalidOrExpired)
		}
		if account.Status != StatusNormal {
			if err := deps.SetStatus(ctx, account.ID, StatusNormal); err != nil {
				return Unavailable[AccountRecord](err)
			}
			account.Status = StatusNormal
			account.UpdatedAt = now(deps.Now)
		}
		if deps.ResetFailures != nil {
			_ = detach(ctx, deps.Acquire, workers.ClassCache, deps.Log, "reset-failed-attempts", func(ctx context.Context) error {
				return deps.ResetFailures(ctx, account.ID)
			})
		}
		deps.MetricInc(deps.Metrics.CodeVerified)
		deps.EmitAudit(ctx, deps.Events.CodeVerified, true, account.ID, ReasonNone, func() map[string]string {
			return map[string]string{"email": masked}
		})
		return OK(account)
	})

	result := settle(ctx, activated)
	if result.Outcome == OutcomeUnavailable {
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.Log.Error().Err(result.Cause).Str("email", masked).Msg("code verification unavailable")
	}
	return result
}
