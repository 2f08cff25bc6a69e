package accessgate

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountUnverified is returned when the email has not been confirmed.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountRevoked is returned for accounts locked by repeated failures.
	ErrAccountRevoked = errors.New("account revoked")
	// ErrAccountExists is returned when the email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned when no account matches.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyVerified is returned when a code is requested for a verified account.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrCodeInvalid covers wrong, expired and already consumed codes.
	ErrCodeInvalid = errors.New("verification code invalid or expired")
	// ErrRateLimited is returned when code requests exceed the throttle window.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable is returned when a dependency failed past its
	// retry and breaker budget.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrUnauthorized is returned by ValidateAccess for any unusable token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidRequest is returned for malformed input at the engine boundary.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEngineNotReady is returned when the engine is nil or closed.
	ErrEngineNotReady = errors.New("engine not initialized")
)
