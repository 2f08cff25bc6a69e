package accessgate

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/accessgate/internal/flows"
)

// Register creates an unverified account and mails it a verification code.
//
// A taken email rejects with ReasonEmailExists. The code is mailed in the
// background; when it cannot even be handed to the mail pool the account is
// still created and the result carries a Warning telling the user to request
// a new code.
func (e *Engine) Register(ctx context.Context, email, username, password string) Result[Registration] {
	if !e.ready() {
		return unavailable[Registration]()
	}
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if email == "" || !strings.Contains(email, "@") ||
		username == "" || utf8.RuneCountInString(username) > 64 ||
		len(password) < 8 || len(password) > e.config.Password.MaxPasswordBytes {
		return rejected[Registration](ReasonInvalidRequest)
	}

	step := flows.RunRegistration(ctx, flows.RegistrationInput{
		Email:    email,
		Username: username,
		Password: password,
	}, e.registrationDeps())

	return fromStep(step, func(r flows.AccountRecord) Registration {
		return Registration{Account: fromRecord(r).View()}
	})
}

func (e *Engine) registrationDeps() flows.RegistrationDeps {
	return flows.RegistrationDeps{
		Acquire: e.acquire,
		Log:     e.log,
		Now:     e.now,

		ExistsByEmail: e.gateway.existsByEmail,
		FindByID:      flowFinder(e.gateway.findByID),
		FindByEmail:   flowFinder(e.gateway.findByEmail),
		Insert:        e.gateway.flowInsert,
		NewID:         e.ids.Next,
		HashPassword:  e.hasher.Hash,

		Delivery: e.codeDelivery(),

		MetricInc: e.flowMetric,
		EmitAudit: e.flowAudit(),
		Metrics: flows.RegistrationMetrics{
			AccountCreated:     int(MetricAccountCreated),
			AccountDuplicate:   int(MetricAccountDuplicate),
			AccountUnavailable: int(MetricAccountCreationUnavailable),
			DeliveryFailed:     int(MetricCodeDeliveryFailed),
		},
		Events: flows.RegistrationEvents{
			AccountCreated:       auditEventAccountCreated,
			AccountCreateFailure: auditEventAccountCreateFailure,
		},
		Errors: flows.RegistrationErrors{
			AccountExists: ErrAccountExists,
		},
	}
}
