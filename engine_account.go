package accessgate

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/MrEthical07/accessgate/jwt"
)

// GetAccount returns the public view of the account with id.
func (e *Engine) GetAccount(ctx context.Context, id string) Result[AccountView] {
	if !e.ready() {
		return unavailable[AccountView]()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return rejected[AccountView](ReasonNotFound)
	}

	account, found, err := e.gateway.findByID(ctx, id)
	if err != nil {
		e.log.Error().Err(err).Str("account_id", mask.Identifier(id)).Msg("account lookup unavailable")
		return unavailable[AccountView]()
	}
	if !found {
		return rejected[AccountView](ReasonNotFound)
	}
	return Result[AccountView]{Kind: KindOK, Value: account.View()}
}

// ValidateAccess verifies an access token locally, without touching any
// store. Every failure is ErrUnauthorized.
func (e *Engine) ValidateAccess(tokenStr string) (AccessIdentity, error) {
	if e == nil || e.tokens == nil {
		return AccessIdentity{}, ErrEngineNotReady
	}
	claims, err := e.tokens.Parse(tokenStr, jwt.TypeAccess)
	if err != nil {
		e.metricInc(MetricAccessRejected)
		return AccessIdentity{}, ErrUnauthorized
	}
	e.metricInc(MetricAccessValidated)

	id := AccessIdentity{
		AccountID: claims.UID,
		Username:  claims.Subject,
		Email:     claims.Email,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// RefreshTokens exchanges a refresh token for a new pair. The account is
// reloaded, so a revoked or unknown account cannot refresh.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) Result[Tokens] {
	if !e.ready() {
		return unavailable[Tokens]()
	}
	claims, err := e.tokens.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return rejected[Tokens](ReasonInvalidCredentials)
	}

	account, found, err := e.gateway.findByID(ctx, claims.UID)
	if err != nil {
		e.log.Error().Err(err).Str("account_id", mask.Identifier(claims.UID)).Msg("refresh unavailable")
		return unavailable[Tokens]()
	}
	if !found {
		return rejected[Tokens](ReasonInvalidCredentials)
	}
	switch account.Status {
	case StatusNormal:
	case StatusRevoked:
		return rejected[Tokens](ReasonAccountRevoked)
	default:
		return rejected[Tokens](ReasonEmailNotVerified)
	}

	pair, err := e.issueTokens(toRecord(account), false)
	if err != nil {
		e.log.Error().Err(err).Msg("token issuance failed")
		return unavailable[Tokens]()
	}
	return Result[Tokens]{Kind: KindOK, Value: Tokens{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}}
}

// RestoreAccount is the support action that lifts a revocation: the account
// returns to normal and its failure counter is cleared. Accounts that are not
// revoked are returned unchanged.
func (e *Engine) RestoreAccount(ctx context.Context, id string) Result[AccountView] {
	if !e.ready() {
		return unavailable[AccountView]()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return rejected[AccountView](ReasonNotFound)
	}

	restored := false
	account, err := e.gateway.update(ctx, id, func(a *Account) {
		if a.Status == StatusRevoked {
			a.Status = StatusNormal
			restored = true
		}
	})
	if errors.Is(err, ErrAccountNotFound) {
		return rejected[AccountView](ReasonNotFound)
	}
	if err != nil {
		e.log.Error().Err(err).Str("account_id", mask.Identifier(id)).Msg("account restore unavailable")
		return unavailable[AccountView]()
	}

	if restored {
		_ = e.resetFailures(ctx, id)
		e.metricInc(MetricAccountRestored)
		e.emitAudit(ctx, auditEventAccountRestored, true, id, "", func() map[string]string {
			return map[string]string{
				"action": "restore",
			}
		})
	}
	return Result[AccountView]{Kind: KindOK, Value: account.View()}
}
