package flows

import (
	"context"
	"time"
)

// AccountStatus is the flow-local account lifecycle state.
type AccountStatus string

const (
	StatusUnverified AccountStatus = "unverified"
	StatusNormal     AccountStatus = "normal"
	StatusRevoked    AccountStatus = "revoked"
)

// AccountRecord is the flow-local account model shared by every flow.
type AccountRecord struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenPair is the flow-local credential pair minted on login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccountFinder looks an account up. found=false with a nil error means the
// account does not exist; a non-nil error means the store was unavailable.
type AccountFinder func(context.Context, string) (AccountRecord, bool, error)

// AuditFunc emits one audit event. metadata is only called when the event is
// actually recorded.
type AuditFunc func(ctx context.Context, event string, success bool, accountID string, reason Reason, metadata func() map[string]string)

func noopAudit(context.Context, string, bool, string, Reason, func() map[string]string) {}

func noopMetric(int) {}
