package accessgate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/accessgate/internal/limiters"
)

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)

	res := env.engine.Login(context.Background(), "  Alice@Example.com ", "Correct-Horse-1", false)
	if !res.OK() {
		t.Fatalf("expected login success, got %s/%s", res.Kind, res.Reason)
	}
	if res.Value.AccessToken == "" || res.Value.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if res.Message() != "Login successful" {
		t.Fatalf("unexpected message %q", res.Message())
	}

	id, err := env.engine.ValidateAccess(res.Value.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.AccountID != "1" || id.Email != "alice@example.com" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if _, err := env.engine.ValidateAccess(res.Value.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh token must not validate as access token, got %v", err)
	}
}

func TestLoginRememberMe(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)

	short := env.engine.Login(context.Background(), "alice@example.com", "Correct-Horse-1", false)
	long := env.engine.Login(context.Background(), "alice@example.com", "Correct-Horse-1", true)
	if !short.OK() || !long.OK() {
		t.Fatalf("expected both logins to succeed: %s %s", short.Reason, long.Reason)
	}
	if long.Message() != "Login successful - Remember me enabled" {
		t.Fatalf("unexpected message %q", long.Message())
	}
	if !long.Value.RefreshExpiresAt.After(short.Value.RefreshExpiresAt) {
		t.Fatal("remember-me refresh token should outlive the default one")
	}
}

func TestLoginUnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)

	unknown := env.engine.Login(context.Background(), "nobody@example.com", "Correct-Horse-1", false)
	wrong := env.engine.Login(context.Background(), "alice@example.com", "Wrong-Horse-1", false)

	for _, res := range []Result[Tokens]{unknown, wrong} {
		if res.Kind != KindRejected || res.Reason != ReasonInvalidCredentials {
			t.Fatalf("expected invalid-credentials, got %s/%s", res.Kind, res.Reason)
		}
		if res.Message() != "Invalid email or password" {
			t.Fatalf("unexpected message %q", res.Message())
		}
		if !errors.Is(res.Err(), ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", res.Err())
		}
	}
}

func TestLoginRejectsBadInputWithoutLookup(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.store.failing.Store(true)

	cases := []struct{ email, password string }{
		{"", "Correct-Horse-1"},
		{"alice@example.com", ""},
		{"alice@example.com", strings.Repeat("x", 2048)},
	}
	for _, c := range cases {
		res := env.engine.Login(context.Background(), c.email, c.password, false)
		if res.Reason != ReasonInvalidCredentials {
			t.Fatalf("expected invalid-credentials for %q, got %s/%s", c.email, res.Kind, res.Reason)
		}
	}
}

func TestLoginStatusGates(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	env.seed(t, "2", "gone@example.com", "Correct-Horse-1", StatusRevoked)

	res := env.engine.Login(context.Background(), "new@example.com", "Correct-Horse-1", false)
	if res.Reason != ReasonEmailNotVerified {
		t.Fatalf("expected email-not-verified, got %s", res.Reason)
	}
	if res.Message() != "Please verify your email address before logging in." {
		t.Fatalf("unexpected message %q", res.Message())
	}

	res = env.engine.Login(context.Background(), "gone@example.com", "Correct-Horse-1", false)
	if res.Reason != ReasonAccountRevoked {
		t.Fatalf("expected account-revoked, got %s", res.Reason)
	}
	if !errors.Is(res.Err(), ErrAccountRevoked) {
		t.Fatalf("expected ErrAccountRevoked, got %v", res.Err())
	}
}

func TestLoginRevokesAfterThreshold(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res := env.engine.Login(ctx, "alice@example.com", "Wrong-Horse-1", false)
		if res.Reason != ReasonInvalidCredentials {
			t.Fatalf("attempt %d: expected invalid-credentials, got %s", i, res.Reason)
		}
	}
	if env.store.status(t, "1") != StatusNormal {
		t.Fatal("account must stay normal through the threshold")
	}

	res := env.engine.Login(ctx, "alice@example.com", "Wrong-Horse-1", false)
	if res.Reason != ReasonAccountRevoked {
		t.Fatalf("6th attempt: expected account-revoked, got %s", res.Reason)
	}
	eventually(t, func() bool { return env.store.status(t, "1") == StatusRevoked })

	res = env.engine.Login(ctx, "alice@example.com", "Correct-Horse-1", false)
	if res.Reason != ReasonAccountRevoked {
		t.Fatalf("correct password on revoked account: expected account-revoked, got %s", res.Reason)
	}
	if env.engine.metrics.Value(MetricAccountRevoked) != 1 {
		t.Fatalf("expected one revocation, got %d", env.engine.metrics.Value(MetricAccountRevoked))
	}
}

func TestRestoreAccountAllowsLoginAgain(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		env.engine.Login(ctx, "alice@example.com", "Wrong-Horse-1", false)
	}
	eventually(t, func() bool { return env.store.status(t, "1") == StatusRevoked })

	restored := env.engine.RestoreAccount(ctx, "1")
	if !restored.OK() || restored.Value.Status != StatusNormal {
		t.Fatalf("restore failed: %s/%s", restored.Kind, restored.Reason)
	}

	res := env.engine.Login(ctx, "alice@example.com", "Correct-Horse-1", false)
	if !res.OK() {
		t.Fatalf("expected login after restore, got %s", res.Reason)
	}

	// The counter was reset, so one wrong attempt does not revoke again.
	res = env.engine.Login(ctx, "alice@example.com", "Wrong-Horse-1", false)
	if res.Reason != ReasonInvalidCredentials {
		t.Fatalf("expected invalid-credentials after restore, got %s", res.Reason)
	}

	if again := env.engine.RestoreAccount(ctx, "1"); !again.OK() || again.Value.Status != StatusNormal {
		t.Fatalf("restoring a normal account should be a no-op, got %s/%s", again.Kind, again.Reason)
	}
	if got := env.engine.metrics.Value(MetricAccountRestored); got != 1 {
		t.Fatalf("expected one restore, got %d", got)
	}
	if missing := env.engine.RestoreAccount(ctx, "404"); missing.Reason != ReasonNotFound {
		t.Fatalf("expected not-found, got %s", missing.Reason)
	}
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.engine.Login(ctx, "alice@example.com", "Wrong-Horse-1", false)
	}
	if res := env.engine.Login(ctx, "alice@example.com", "Correct-Horse-1", false); !res.OK() {
		t.Fatalf("expected success, got %s", res.Reason)
	}
	eventually(t, func() bool { return !env.mr.Exists(limiters.Key("1")) })

	if res := env.engine.Login(ctx, "alice@example.com", "Wrong-Horse-1", false); res.Reason != ReasonInvalidCredentials {
		t.Fatalf("expected invalid-credentials after reset, got %s", res.Reason)
	}
}

func TestLoginWithCacheDownNeverRevokes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)
	env.mr.Close()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		res := env.engine.Login(ctx, "alice@example.com", "Wrong-Horse-1", false)
		if res.Reason != ReasonInvalidCredentials {
			t.Fatalf("attempt %d: expected invalid-credentials, got %s/%s", i, res.Kind, res.Reason)
		}
	}
	if env.store.status(t, "1") != StatusNormal {
		t.Fatal("a cache outage must not revoke accounts")
	}
	if res := env.engine.Login(ctx, "alice@example.com", "Correct-Horse-1", false); !res.OK() {
		t.Fatalf("expected login with cache down, got %s/%s", res.Kind, res.Reason)
	}
}

func TestFailedLoginCountsOnceWhenExpiryWriteFails(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)
	fault := &failOnce{command: "expire"}
	env.rdb.AddHook(fault)

	res := env.engine.Login(context.Background(), "alice@example.com", "Wrong-Horse-1", false)
	if res.Reason != ReasonInvalidCredentials {
		t.Fatalf("expected invalid-credentials, got %s/%s", res.Kind, res.Reason)
	}
	if !fault.tripped.Load() {
		t.Fatal("expiry write was never attempted")
	}

	count, err := env.mr.Get(limiters.Key("1"))
	if err != nil || count != "1" {
		t.Fatalf("expected count 1 after one failure, got %q (%v)", count, err)
	}
	if ttl := env.mr.TTL(limiters.Key("1")); ttl != env.engine.config.Lockout.Window {
		t.Fatalf("expected ttl %v, got %v", env.engine.config.Lockout.Window, ttl)
	}
}

func TestLoginWithStoreDownIsUnavailable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)
	env.store.failing.Store(true)

	res := env.engine.Login(context.Background(), "alice@example.com", "Correct-Horse-1", false)
	if res.Kind != KindUnavailable {
		t.Fatalf("expected unavailable, got %s/%s", res.Kind, res.Reason)
	}
	if res.Message() != "Service temporarily unavailable. Please try again later." {
		t.Fatalf("unexpected message %q", res.Message())
	}
	if !errors.Is(res.Err(), ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", res.Err())
	}
	if env.engine.metrics.Value(MetricLoginUnavailable) != 1 {
		t.Fatal("expected unavailable metric")
	}
}

func TestRefreshTokens(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)
	ctx := context.Background()

	login := env.engine.Login(ctx, "alice@example.com", "Correct-Horse-1", false)
	if !login.OK() {
		t.Fatalf("login failed: %s", login.Reason)
	}

	res := env.engine.RefreshTokens(ctx, login.Value.RefreshToken)
	if !res.OK() || res.Value.AccessToken == "" {
		t.Fatalf("expected refresh to succeed, got %s/%s", res.Kind, res.Reason)
	}
	if bad := env.engine.RefreshTokens(ctx, login.Value.AccessToken); bad.Reason != ReasonInvalidCredentials {
		t.Fatalf("access token must not refresh, got %s", bad.Reason)
	}

	if err := env.engine.gateway.setStatus(ctx, "1", StatusRevoked); err != nil {
		t.Fatalf("setStatus: %v", err)
	}
	if res := env.engine.RefreshTokens(ctx, login.Value.RefreshToken); res.Reason != ReasonAccountRevoked {
		t.Fatalf("expected account-revoked, got %s", res.Reason)
	}
}
