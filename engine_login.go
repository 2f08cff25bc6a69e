package accessgate

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/accessgate/internal/flows"
	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/MrEthical07/accessgate/internal/resilience"
	"github.com/MrEthical07/accessgate/jwt"
)

// Login authenticates email and password and mints an access and refresh
// token pair. rememberMe selects the longer refresh lifetime.
//
// An unknown email and a wrong password both reject with
// ReasonInvalidCredentials. Each wrong password increments the account's
// failure counter; once the count exceeds Lockout.RevokeThreshold the account
// is revoked and every later login rejects with ReasonAccountRevoked until
// RestoreAccount. A failing counter never locks anyone out: the increment
// degrades to zero.
func (e *Engine) Login(ctx context.Context, email, password string, rememberMe bool) Result[Tokens] {
	if !e.ready() {
		return unavailable[Tokens]()
	}
	email = normalizeEmail(email)
	if email == "" || password == "" || len(password) > e.config.Password.MaxPasswordBytes {
		e.metricInc(MetricLoginFailure)
		return rejected[Tokens](ReasonInvalidCredentials)
	}

	start := time.Now()
	step := flows.RunLogin(ctx, email, password, rememberMe, e.loginDeps())
	e.metrics.Observe(MetricLoginLatency, time.Since(start))

	return fromStep(step, func(p flows.TokenPair) Tokens {
		return Tokens{
			AccessToken:      p.AccessToken,
			RefreshToken:     p.RefreshToken,
			AccessExpiresAt:  p.AccessExpiresAt,
			RefreshExpiresAt: p.RefreshExpiresAt,
			RememberMe:       rememberMe,
		}
	})
}

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		RevokeThreshold:        e.config.Lockout.RevokeThreshold,
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,

		Acquire: e.acquire,
		Log:     e.log,

		FindByEmail:          flowFinder(e.gateway.findByEmail),
		VerifyPassword:       e.hasher.Verify,
		PasswordNeedsUpgrade: e.hasher.NeedsRehash,
		HashPassword:         e.hasher.Hash,
		UpdatePasswordHash:   e.gateway.setPasswordHash,
		SetStatus:            e.gateway.flowSetStatus,

		IncrementFailures: e.incrementFailures,
		ResetFailures:     e.resetFailures,

		IssueTokens: e.issueTokens,

		MetricInc: e.flowMetric,
		EmitAudit: e.flowAudit(),
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginUnavailable: int(MetricLoginUnavailable),
			AccountRevoked:   int(MetricAccountRevoked),
			PasswordUpgraded: int(MetricPasswordUpgraded),
		},
		Events: flows.LoginEvents{
			LoginSuccess:   auditEventLoginSuccess,
			LoginFailure:   auditEventLoginFailure,
			AccountRevoked: auditEventAccountRevoked,
		},
	}
}

func (e *Engine) issueTokens(account flows.AccountRecord, rememberMe bool) (flows.TokenPair, error) {
	pair, err := e.tokens.Issue(jwt.Identity{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
	}, rememberMe)
	if err != nil {
		return flows.TokenPair{}, err
	}
	return flows.TokenPair{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// incrementFailures degrades to a count of zero when the cache is down, so an
// outage neither locks accounts nor blocks logins.
func (e *Engine) incrementFailures(ctx context.Context, accountID string) (int64, error) {
	return resilience.Execute(ctx, e.cacheGuard, mask.Identifier(accountID), func(ctx context.Context) (int64, error) {
		return e.attempts.Increment(ctx, accountID)
	}, func(cause error) (int64, error) {
		e.log.Warn().Err(cause).Str("account_id", mask.Identifier(accountID)).Msg("failed-attempt counter unavailable, counting as zero")
		return 0, nil
	})
}

func (e *Engine) resetFailures(ctx context.Context, accountID string) error {
	_, err := resilience.Execute(ctx, e.cacheGuard, mask.Identifier(accountID), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.attempts.Reset(ctx, accountID)
	}, func(cause error) (struct{}, error) {
		e.log.Warn().Err(cause).Str("account_id", mask.Identifier(accountID)).Msg("failed-attempt reset skipped")
		return struct{}{}, nil
	})
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
