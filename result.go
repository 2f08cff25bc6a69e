package accessgate

import "github.com/MrEthical07/accessgate/internal/flows"

// Kind tags the outcome of an Engine operation.
type Kind uint8

const (
	// KindOK means the operation succeeded and Value is set.
	KindOK Kind = iota
	// KindRejected is a business answer. Reason is set and safe to show.
	KindRejected
	// KindUnavailable means a dependency failed. Callers may retry later.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// Reason names a rejection.
type Reason = flows.Reason

const (
	ReasonInvalidCredentials = flows.ReasonInvalidCredentials
	ReasonEmailNotVerified   = flows.ReasonEmailNotVerified
	ReasonAccountRevoked     = flows.ReasonAccountRevoked
	ReasonEmailExists        = flows.ReasonEmailExists
	ReasonNotFound           = flows.ReasonNotFound
	ReasonAlreadyVerified    = flows.ReasonAlreadyVerified
	ReasonInvalidOrExpired   = flows.ReasonInvalidOrExpired
	ReasonRateLimited        = flows.ReasonRateLimited
	ReasonInvalidRequest     = flows.ReasonInvalidRequest
	ReasonUnavailable        = flows.ReasonUnavailable
)

// DeliveryWarning is the Warning of a registration whose verification code
// could not be handed to the mailer.
const DeliveryWarning = flows.DeliveryWarning

// Result is returned by every Engine operation instead of an error. An
// operation never panics and never returns a raw dependency error.
type Result[T any] struct {
	Kind   Kind
	Reason Reason
	Value  T
	// Warning is set on a successful result whose side effect degraded, such
	// as a verification mail that could not be handed off.
	Warning string
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool {
	return r.Kind == KindOK
}

// Err maps the result onto the package sentinel errors, nil on success.
func (r Result[T]) Err() error {
	switch r.Kind {
	case KindOK:
		return nil
	case KindUnavailable:
		return ErrServiceUnavailable
	}
	switch r.Reason {
	case ReasonInvalidCredentials:
		return ErrInvalidCredentials
	case ReasonEmailNotVerified:
		return ErrAccountUnverified
	case ReasonAccountRevoked:
		return ErrAccountRevoked
	case ReasonEmailExists:
		return ErrAccountExists
	case ReasonNotFound:
		return ErrAccountNotFound
	case ReasonAlreadyVerified:
		return ErrAlreadyVerified
	case ReasonInvalidOrExpired:
		return ErrCodeInvalid
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonInvalidRequest:
		return ErrInvalidRequest
	default:
		return ErrServiceUnavailable
	}
}

const (
	msgUnavailable        = "Service temporarily unavailable. Please try again later."
	msgInvalidCredentials = "Invalid email or password"
	msgEmailNotVerified   = "Please verify your email address before logging in."
	msgAccountRevoked     = "Your account has been revoked. Please contact support."
	msgEmailExists        = "Email already exists"
	msgNotFound           = "User not found"
	msgAlreadyVerified    = "User is already verified"
	msgInvalidOrExpired   = "Invalid or expired OTP. Please request a new one."
	msgRateLimited        = "Too many verification requests. Please try again later."
	msgInvalidRequest     = "Invalid request"
)

// Message returns the end-user wording for a rejection or unavailability.
// Successful results return the operation-specific message supplied by the
// Engine, or "Success".
func (r Result[T]) Message() string {
	if r.Kind == KindOK {
		if r.Warning != "" {
			return r.Warning
		}
		if m, ok := any(r.Value).(interface{ message() string }); ok {
			return m.message()
		}
		return "Success"
	}
	if r.Kind == KindUnavailable {
		return msgUnavailable
	}
	switch r.Reason {
	case ReasonInvalidCredentials:
		return msgInvalidCredentials
	case ReasonEmailNotVerified:
		return msgEmailNotVerified
	case ReasonAccountRevoked:
		return msgAccountRevoked
	case ReasonEmailExists:
		return msgEmailExists
	case ReasonNotFound:
		return msgNotFound
	case ReasonAlreadyVerified:
		return msgAlreadyVerified
	case ReasonInvalidOrExpired:
		return msgInvalidOrExpired
	case ReasonRateLimited:
		return msgRateLimited
	case ReasonInvalidRequest:
		return msgInvalidRequest
	default:
		return msgUnavailable
	}
}

func fromStep[A, B any](s flows.Step[A], convert func(A) B) Result[B] {
	switch s.Outcome {
	case flows.OutcomeOK:
		return Result[B]{Kind: KindOK, Value: convert(s.Value), Warning: s.Warning}
	case flows.OutcomeRejected:
		return Result[B]{Kind: KindRejected, Reason: s.Reason}
	default:
		return Result[B]{Kind: KindUnavailable, Reason: ReasonUnavailable}
	}
}

func unavailable[T any]() Result[T] {
	return Result[T]{Kind: KindUnavailable, Reason: ReasonUnavailable}
}

func rejected[T any](reason Reason) Result[T] {
	return Result[T]{Kind: KindRejected, Reason: reason}
}
