package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/rs/zerolog"
)

// ErrPersistenceMismatch reports that a freshly saved account could not be
// read back consistently by id and by email.
var ErrPersistenceMismatch = errors.New("saved account not readable")

// DeliveryWarning is attached to a successful registration whose
// verification code could not be handed off.
const DeliveryWarning = "Registration successful, but we could not send the verification code. Please request a new one."

// RegistrationInput is the flow-local sign-up request.
type RegistrationInput struct {
	Email    string
	Username string
	Password string
}

type RegistrationMetrics struct {
	AccountCreated     int
	AccountDuplicate   int
	AccountUnavailable int
	DeliveryFailed     int
}

type RegistrationEvents struct {
	AccountCreated       string
	AccountCreateFailure string
}

type RegistrationErrors struct {
	// AccountExists is matched with errors.Is against Insert failures.
	AccountExists error
}

// RegistrationDeps captures sign-up dependencies.
type RegistrationDeps struct {
	Acquire Acquirer
	Log     zerolog.Logger
	Now     func() time.Time

	ExistsByEmail func(context.Context, string) (bool, error)
	FindByID      AccountFinder
	FindByEmail   AccountFinder
	Insert        func(context.Context, AccountRecord) error
	NewID         func() string
	HashPassword  func(string) (string, error)

	Delivery CodeDelivery

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RegistrationMetrics
	Events  RegistrationEvents
	Errors  RegistrationErrors
}

// RunRegistration creates an unverified account, confirms it is readable and
// hands a verification code to the mail pool. A failed hand-off only adds
// DeliveryWarning to the result.
func RunRegistration(ctx context.Context, in RegistrationInput, deps RegistrationDeps) Step[AccountRecord] {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Acquire == nil ||
		deps.ExistsByEmail == nil ||
		deps.FindByID == nil ||
		deps.FindByEmail == nil ||
		deps.Insert == nil ||
		deps.NewID == nil ||
		deps.HashPassword == nil {
		return Unavailable[AccountRecord](ErrFlowNotReady)
	}

	masked := mask.Email(in.Email)
	duplicate := func(ctx context.Context) Step[AccountRecord] {
		deps.MetricInc(deps.Metrics.AccountDuplicate)
		deps.EmitAudit(ctx, deps.Events.AccountCreateFailure, false, "", ReasonEmailExists, func() map[string]string {
			return map[string]string{"email": masked}
		})
		return Reject[AccountRecord](ReasonEmailExists)
	}

	checked := begin(ctx, deps.Acquire, workers.ClassRegistration, func(ctx context.Context) Step[struct{}] {
		exists, err := deps.ExistsByEmail(ctx, in.Email)
		if err != nil {
			return Unavailable[struct{}](err)
		}
		if exists {
			return carry[AccountRecord, struct{}](duplicate(ctx))
		}
		return OK(struct{}{})
	})

	saved := then(ctx, deps.Acquire, workers.ClassRegistration, checked, func(ctx context.Context, _ struct{}) Step[AccountRecord] {
		hash, err := deps.HashPassword(in.Password)
		if err != nil {
			return Unavailable[AccountRecord](fmt.Errorf("hash password: %w", err))
		}
		at := now(deps.Now)
		account := AccountRecord{
			ID:           deps.NewID(),
			Username:     strings.TrimSpace(in.Username),
			Email:        in.Email,
			PasswordHash: hash,
			Status:       StatusUnverified,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		if err := deps.Insert(ctx, account); err != nil {
			if deps.Errors.AccountExists != nil && errors.Is(err, deps.Errors.AccountExists) {
				return duplicate(ctx)
			}
			return Unavailable[AccountRecord](err)
		}
		return OK(account)
	})

	confirmed := then(ctx, deps.Acquire, workers.ClassUserOperations, saved, func(ctx context.Context, account AccountRecord) Step[AccountRecord] {
		byID, found, err := deps.FindByID(ctx, account.ID)
		if err != nil {
			return Unavailable[AccountRecord](err)
		}
		if !found {
			return Unavailable[AccountRecord](fmt.Errorf("%w: id lookup", ErrPersistenceMismatch))
		}
		byEmail, found, err := deps.FindByEmail(ctx, account.Email)
		if err != nil {
			return Unavailable[AccountRecord](err)
		}
		if !found || byEmail.ID != byID.ID {
			return Unavailable[AccountRecord](fmt.Errorf("%w: email lookup", ErrPersistenceMismatch))
		}
		return OK(byID)
	})

	delivered := then(ctx, deps.Acquire, workers.ClassOTP, confirmed, func(ctx context.Context, account AccountRecord) Step[AccountRecord] {
		deps.MetricInc(deps.Metrics.AccountCreated)
		deps.EmitAudit(ctx, deps.Events.AccountCreated, true, account.ID, ReasonNone, func() map[string]string {
			return map[string]string{"email": masked}
		})

		out := OK(account)
		if err := deliverCode(ctx, deps.Acquire, deps.Log, deps.Delivery, account.Email); err != nil {
			deps.MetricInc(deps.Metrics.DeliveryFailed)
			deps.Log.Warn().Err(err).Str("email", masked).Msg("verification code not dispatched after registration")
			out.Warning = DeliveryWarning
		}
		return out
	})

	result := settle(ctx, delivered)
	if result.Outcome == OutcomeUnavailable {
		deps.MetricInc(deps.Metrics.AccountUnavailable)
		deps.Log.Error().Err(result.Cause).Str("email", masked).Msg("registration unavailable")
	}
	return result
}
