package accessgate

import (
	"context"

	internalaudit "github.com/MrEthical07/accessgate/internal/audit"
	"github.com/MrEthical07/accessgate/internal/flows"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventAccountRevoked        = "account_revoked"
	auditEventAccountRestored       = "account_restored"
	auditEventAccountCreated        = "account_creation_success"
	auditEventAccountCreateFailure  = "account_creation_failure"
	auditEventVerificationRequested = "email_verification_request"
	auditEventVerificationConfirmed = "email_verification_confirm"
	auditEventVerificationRejected  = "email_verification_rejected"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	reason Reason,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := internalaudit.NewEvent(eventType, success)
	event.Timestamp = e.now().UTC()
	event.AccountID = accountID
	event.RequestID = RequestIDFromContext(ctx)
	event.IP = clientIPFromContext(ctx)
	event.Reason = string(reason)
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, event)
}

// flowAudit adapts emitAudit to flows.AuditFunc.
func (e *Engine) flowAudit() flows.AuditFunc {
	return func(ctx context.Context, event string, success bool, accountID string, reason flows.Reason, metadata func() map[string]string) {
		e.emitAudit(ctx, event, success, accountID, reason, metadata)
	}
}
