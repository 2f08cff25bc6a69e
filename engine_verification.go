package accessgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/accessgate/internal/flows"
	"github.com/MrEthical07/accessgate/internal/limiters"
	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/MrEthical07/accessgate/internal/resilience"
	"github.com/MrEthical07/accessgate/internal/stores"
)

// IssueVerificationCode mails a fresh code to an unverified account,
// replacing any earlier code.
//
// Unknown addresses reject with ReasonNotFound and verified ones with
// ReasonAlreadyVerified. Requests beyond the throttle window reject with
// ReasonRateLimited. The client IP set by WithClientIP feeds the per-IP
// throttle.
func (e *Engine) IssueVerificationCode(ctx context.Context, email string) Result[CodeDispatch] {
	if !e.ready() {
		return unavailable[CodeDispatch]()
	}
	email = normalizeEmail(email)
	if email == "" {
		return rejected[CodeDispatch](ReasonNotFound)
	}

	step := flows.RunIssueCode(ctx, email, e.verificationDeps())
	if step.Reason == flows.ReasonRateLimited {
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", ReasonRateLimited, func() map[string]string {
			return map[string]string{
				"scope": "verification_request",
				"email": mask.Email(email),
			}
		})
	}

	return fromStep(step, func(d flows.CodeDispatch) CodeDispatch {
		return CodeDispatch{Email: d.Email, ExpiresAt: d.ExpiresAt}
	})
}

// VerifyCode consumes code and activates the account. A wrong, expired or
// reused code rejects with ReasonInvalidOrExpired, as does an unknown or
// revoked account, so the answer does not reveal which addresses exist.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) Result[Verification] {
	if !e.ready() {
		return unavailable[Verification]()
	}
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || !wellFormedCode(code, e.config.OTP.Digits) {
		e.metricInc(MetricCodeRejected)
		return rejected[Verification](ReasonInvalidOrExpired)
	}

	step := flows.RunVerifyCode(ctx, email, code, e.verificationDeps())
	return fromStep(step, func(r flows.AccountRecord) Verification {
		return Verification{Account: fromRecord(r).View()}
	})
}

func wellFormedCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func (e *Engine) verificationDeps() flows.VerificationDeps {
	return flows.VerificationDeps{
		CodeTTL: e.codes.TTL(),

		Acquire: e.acquire,
		Log:     e.log,
		Now:     e.now,

		CheckThrottle: e.checkThrottle,

		FindByEmail: flowFinder(e.gateway.findByEmail),
		SetStatus:   e.gateway.flowSetStatus,

		Delivery: e.codeDelivery(),

		ConsumeCode: e.consumeCode,

		ResetFailures: e.resetFailures,

		MetricInc: e.flowMetric,
		EmitAudit: e.flowAudit(),
		Metrics: flows.VerificationMetrics{
			CodeRequested:   int(MetricCodeRequested),
			CodeRateLimited: int(MetricCodeRateLimited),
			CodeVerified:    int(MetricCodeVerified),
			CodeRejected:    int(MetricCodeRejected),
			Unavailable:     int(MetricVerificationUnavailable),
		},
		Events: flows.VerificationEvents{
			CodeRequested: auditEventVerificationRequested,
			CodeVerified:  auditEventVerificationConfirmed,
			CodeRejected:  auditEventVerificationRejected,
		},
	}
}

/*
====================================
CODE DELIVERY
====================================
*/

func (e *Engine) codeDelivery() flows.CodeDelivery {
	return flows.CodeDelivery{
		Issue: e.issueCode,
		Send:  e.sendCode,
	}
}

func cacheUnavailable[T any](cause error) (T, error) {
	var zero T
	return zero, fmt.Errorf("%w: %v", ErrServiceUnavailable, cause)
}

func (e *Engine) issueCode(ctx context.Context, email string) (string, error) {
	return resilience.Execute(ctx, e.cacheGuard, mask.Email(email), func(ctx context.Context) (string, error) {
		return e.codes.Issue(ctx, email, stores.PurposeEmailVerification)
	}, cacheUnavailable[string])
}

// consumeCode may be retried by the cache guard. A retry after a lost reply
// finds the code already deleted and answers false, so a code never verifies
// twice.
func (e *Engine) consumeCode(ctx context.Context, email, submitted string) (bool, error) {
	return resilience.Execute(ctx, e.cacheGuard, mask.Email(email), func(ctx context.Context) (bool, error) {
		return e.codes.Consume(ctx, email, stores.PurposeEmailVerification, submitted)
	}, cacheUnavailable[bool])
}

// checkThrottle fails open: an unreachable cache must not block code
// requests.
func (e *Engine) checkThrottle(ctx context.Context, email string) (bool, error) {
	ip := clientIPFromContext(ctx)
	_, err := resilience.Execute(ctx, e.cacheGuard, mask.Email(email), func(ctx context.Context) (struct{}, error) {
		err := e.throttle.CheckRequest(ctx, email, ip)
		if errors.Is(err, limiters.ErrVerificationRateLimited) {
			return struct{}{}, resilience.Permanent(err)
		}
		return struct{}{}, err
	}, func(cause error) (struct{}, error) {
		e.log.Warn().Err(cause).Str("email", mask.Email(email)).Msg("verification throttle unavailable, allowing request")
		return struct{}{}, nil
	})
	if errors.Is(err, limiters.ErrVerificationRateLimited) {
		return true, nil
	}
	return false, err
}

// sendCode runs on the mail pool after the request has returned.
func (e *Engine) sendCode(ctx context.Context, email, code string) error {
	subject := e.config.OTP.Subject
	body := verificationBody(code, int(e.config.OTP.TTL/time.Minute))
	_, err := resilience.Execute(ctx, e.mailGuard, mask.Email(email), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.mailer.Send(ctx, email, subject, body)
	}, nil)
	return err
}

func verificationBody(code string, minutes int) string {
	return fmt.Sprintf(
		"<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
		code, minutes,
	)
}
