package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/rs/zerolog"
)

var (
	// ErrFlowNotReady is returned as the Cause when required dependencies are
	// missing.
	ErrFlowNotReady = errors.New("flow dependencies not configured")
	// ErrUnknownStatus marks an account row with a status outside the known set.
	ErrUnknownStatus = errors.New("unknown account status")
)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginUnavailable int
	AccountRevoked   int
	PasswordUpgraded int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess   string
	LoginFailure   string
	AccountRevoked string
}

// LoginDeps captures login dependencies. Every store and cache call is
// expected to be wrapped in its resilience guard by the caller.
type LoginDeps struct {
	// RevokeThreshold is the largest failure count that does not revoke.
	RevokeThreshold        int64
	PasswordUpgradeOnLogin bool

	Acquire Acquirer
	Log     zerolog.Logger

	FindByEmail          AccountFinder
	VerifyPassword       func(password, hash string) (bool, error)
	PasswordNeedsUpgrade func(hash string) bool
	HashPassword         func(string) (string, error)
	UpdatePasswordHash   func(ctx context.Context, accountID, hash string) error
	SetStatus            func(ctx context.Context, accountID string, status AccountStatus) error

	IncrementFailures func(context.Context, string) (int64, error)
	ResetFailures     func(context.Context, string) error

	IssueTokens func(AccountRecord, bool) (TokenPair, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics LoginMetrics
	Events  LoginEvents
}

type passwordCheck struct {
	account AccountRecord
	matched bool
}

// RunLogin walks lookup, status check, password check and token issuance as
// a chain of stages on the login and cache pools.
func RunLogin(ctx context.Context, email, password string, rememberMe bool, deps LoginDeps) Step[TokenPair] {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Acquire == nil ||
		deps.FindByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.IncrementFailures == nil ||
		deps.SetStatus == nil ||
		deps.IssueTokens == nil {
		return Unavailable[TokenPair](ErrFlowNotReady)
	}

	masked := mask.Email(email)
	reject := func(ctx context.Context, reason Reason, accountID, detail string) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, accountID, reason, func() map[string]string {
			return map[string]string{
				"email":  masked,
				"reason": detail,
			}
		})
	}

	lookup := begin(ctx, deps.Acquire, workers.ClassLogin, func(ctx context.Context) Step[AccountRecord] {
		account, found, err := deps.FindByEmail(ctx, email)
		if err != nil {
			return Unavailable[AccountRecord](err)
		}
		if !found {
			reject(ctx, ReasonInvalidCredentials, "", "account_not_found")
			return Reject[AccountRecord](ReasonInvalidCredentials)
		}

		switch account.Status {
		case StatusNormal:
			return OK(account)
		case StatusUnverified:
			reject(ctx, ReasonEmailNotVerified, account.ID, "unverified")
			return Reject[AccountRecord](ReasonEmailNotVerified)
		case StatusRevoked:
			reject(ctx, ReasonAccountRevoked, account.ID, "revoked")
			return Reject[AccountRecord](ReasonAccountRevoked)
		default:
			return Unavailable[AccountRecord](fmt.Errorf("%w: %q", ErrUnknownStatus, account.Status))
		}
	})

	checked := then(ctx, deps.Acquire, workers.ClassLogin, lookup, func(ctx context.Context, account AccountRecord) Step[passwordCheck] {
		ok, err := deps.VerifyPassword(password, account.PasswordHash)
		if err != nil {
			return Unavailable[passwordCheck](err)
		}
		return OK(passwordCheck{account: account, matched: ok})
	})

	counted := then(ctx, deps.Acquire, workers.ClassCache, checked, func(ctx context.Context, pc passwordCheck) Step[AccountRecord] {
		account := pc.account
		if pc.matched {
			if deps.ResetFailures != nil {
				_ = detach(ctx, deps.Acquire, workers.ClassCache, deps.Log, "reset-failed-attempts", func(ctx context.Context) error {
					return deps.ResetFailures(ctx, account.ID)
				})
			}
			deps.upgradePassword(ctx, account, password)
			return OK(account)
		}

		count, err := deps.IncrementFailures(ctx, account.ID)
		if err != nil {
			return Unavailable[AccountRecord](err)
		}
		if count > deps.RevokeThreshold {
			deps.revoke(ctx, account, count, masked)
			reject(ctx, ReasonAccountRevoked, account.ID, "attempts_exceeded")
			return Reject[AccountRecord](ReasonAccountRevoked)
		}
		reject(ctx, ReasonInvalidCredentials, account.ID, "password_mismatch")
		return Reject[AccountRecord](ReasonInvalidCredentials)
	})

	issued := then(ctx, deps.Acquire, workers.ClassLogin, counted, func(ctx context.Context, account AccountRecord) Step[TokenPair] {
		pair, err := deps.IssueTokens(account, rememberMe)
		if err != nil {
			return Unavailable[TokenPair](err)
		}
		deps.MetricInc(deps.Metrics.LoginSuccess)
		deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, account.ID, ReasonNone, func() map[string]string {
			return map[string]string{
				"email":       masked,
				"remember_me": fmt.Sprint(rememberMe),
			}
		})
		return OK(pair)
	})

	result := settle(ctx, issued)
	if result.Outcome == OutcomeUnavailable {
		deps.MetricInc(deps.Metrics.LoginUnavailable)
		deps.Log.Error().Err(result.Cause).Str("email", masked).Msg("login unavailable")
	}
	return result
}

// revoke schedules the status change on the user-operations pool. The
// response does not wait for it; a later attempt sees the raised count.
func (deps LoginDeps) revoke(ctx context.Context, account AccountRecord, count int64, masked string) {
	deps.MetricInc(deps.Metrics.AccountRevoked)
	deps.Log.Warn().
		Str("account_id", mask.Identifier(account.ID)).
		Str("email", masked).
		Int64("failed_attempts", count).
		Msg("revoking account after repeated failed logins")

	_ = detach(ctx, deps.Acquire, workers.ClassUserOperations, deps.Log, "revoke-account", func(ctx context.Context) error {
		if err := deps.SetStatus(ctx, account.ID, StatusRevoked); err != nil {
			return err
		}
		deps.EmitAudit(ctx, deps.Events.AccountRevoked, true, account.ID, ReasonAccountRevoked, func() map[string]string {
			return map[string]string{
				"failed_attempts": fmt.Sprint(count),
			}
		})
		return nil
	})
}

func (deps LoginDeps) upgradePassword(ctx context.Context, account AccountRecord, password string) {
	if !deps.PasswordUpgradeOnLogin ||
		deps.PasswordNeedsUpgrade == nil ||
		deps.HashPassword == nil ||
		deps.UpdatePasswordHash == nil ||
		!deps.PasswordNeedsUpgrade(account.PasswordHash) {
		return
	}

	_ = detach(ctx, deps.Acquire, workers.ClassUserOperations, deps.Log, "upgrade-password-hash", func(ctx context.Context) error {
		hash, err := deps.HashPassword(password)
		if err != nil {
			return fmt.Errorf("password hash upgrade generation failed: %w", err)
		}
		if err := deps.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
			return fmt.Errorf("password hash upgrade update failed: %w", err)
		}
		deps.MetricInc(deps.Metrics.PasswordUpgraded)
		return nil
	})
}

// now is shared by flows that stamp records.
func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}
