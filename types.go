package accessgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/accessgate/internal/audit"
)

// Status is the lifecycle state of an account. Only StatusNormal may log in.
type Status string

const (
	// StatusUnverified accounts exist but have not confirmed their email.
	StatusUnverified Status = "unverified"
	// StatusNormal accounts may log in.
	StatusNormal Status = "normal"
	// StatusRevoked accounts were locked after repeated failed logins and
	// stay locked until RestoreAccount.
	StatusRevoked Status = "revoked"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnverified, StatusNormal, StatusRevoked:
		return true
	}
	return false
}

// Account is the persisted account record. PasswordHash is a PHC argon2id
// string or a legacy bcrypt hash and is never logged or returned to callers.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// View strips credential material from a.
func (a Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
	}
}

// AccountView is the public projection of an Account.
type AccountView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// AccountStore is the durable account repository.
//
// Find methods return (Account{}, false, nil) for an absent account and an
// error only when the store could not answer. Save inserts or replaces the
// account keyed by ID and must be idempotent, because it is retried. When a
// different account already owns the email or username, Save returns an error
// wrapping ErrAccountExists.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (Account, bool, error)
	FindByID(ctx context.Context, id string) (Account, bool, error)
	Save(ctx context.Context, account Account) error
	Count(ctx context.Context) (int64, error)
}

// Mailer delivers one message. Send runs on the mail pool, never on the
// request goroutine.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Tokens is returned by a successful Login.
type Tokens struct {
	AccessToken      string    `json:"token"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	RememberMe       bool      `json:"-"`
}

func (t Tokens) message() string {
	if t.RememberMe {
		return "Login successful - Remember me enabled"
	}
	return "Login successful"
}

// Registration is returned by a successful Register.
type Registration struct {
	Account AccountView `json:"account"`
}

func (Registration) message() string {
	return "Account created successfully. Please verify your email address to activate your account."
}

// CodeDispatch is returned when a verification code was handed to the mailer.
type CodeDispatch struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (CodeDispatch) message() string {
	return "OTP sent successfully. Please check your email to verify your account."
}

// Verification is returned by a successful VerifyCode.
type Verification struct {
	Account AccountView `json:"account"`
}

func (Verification) message() string {
	return "Email verified successfully. You can now login."
}

// AccessIdentity is what ValidateAccess extracts from a valid access token.
type AccessIdentity struct {
	AccountID string
	Username  string
	Email     string
	ExpiresAt time.Time
}

/*
====================================
AUDIT
====================================
*/

// AuditEvent is one security-relevant record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events into a channel, mostly for tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink = internalaudit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
