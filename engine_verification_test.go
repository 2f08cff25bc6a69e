package accessgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/accessgate/internal/stores"
)

func TestRegisterVerifyLoginRoundTrip(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	reg := env.engine.Register(ctx, "Bob@Example.com", "bob", "Correct-Horse-1")
	if !reg.OK() {
		t.Fatalf("register failed: %s/%s", reg.Kind, reg.Reason)
	}
	if reg.Warning != "" {
		t.Fatalf("unexpected warning %q", reg.Warning)
	}
	if reg.Value.Account.Status != StatusUnverified || reg.Value.Account.Email != "bob@example.com" {
		t.Fatalf("unexpected account %+v", reg.Value.Account)
	}
	if reg.Message() != "Account created successfully. Please verify your email address to activate your account." {
		t.Fatalf("unexpected message %q", reg.Message())
	}

	if code := env.mailer.nextCode(t); code != "042517" {
		t.Fatalf("expected code 042517, got %q", code)
	}

	if res := env.engine.Login(ctx, "bob@example.com", "Correct-Horse-1", false); res.Reason != ReasonEmailNotVerified {
		t.Fatalf("expected email-not-verified before verification, got %s", res.Reason)
	}

	if res := env.engine.VerifyCode(ctx, "bob@example.com", "999999"); res.Reason != ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired for wrong code, got %s", res.Reason)
	}

	res := env.engine.VerifyCode(ctx, "bob@example.com", "042517")
	if !res.OK() || res.Value.Account.Status != StatusNormal {
		t.Fatalf("expected verification, got %s/%s", res.Kind, res.Reason)
	}
	if res.Message() != "Email verified successfully. You can now login." {
		t.Fatalf("unexpected message %q", res.Message())
	}

	if again := env.engine.VerifyCode(ctx, "bob@example.com", "042517"); again.Reason != ReasonInvalidOrExpired {
		t.Fatalf("expected consumed code to be rejected, got %s", again.Reason)
	}

	login := env.engine.Login(ctx, "bob@example.com", "Correct-Horse-1", false)
	if !login.OK() {
		t.Fatalf("expected login after verification, got %s", login.Reason)
	}
	if _, err := env.engine.ValidateAccess(login.Value.AccessToken); err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}

	view := env.engine.GetAccount(ctx, reg.Value.Account.ID)
	if !view.OK() || view.Value.Username != "bob" {
		t.Fatalf("GetAccount: %s/%s %+v", view.Kind, view.Reason, view.Value)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)

	res := env.engine.Register(context.Background(), "ALICE@example.com", "alice2", "Correct-Horse-1")
	if res.Reason != ReasonEmailExists {
		t.Fatalf("expected email-exists, got %s/%s", res.Kind, res.Reason)
	}
	if res.Message() != "Email already exists" {
		t.Fatalf("unexpected message %q", res.Message())
	}
	if !errors.Is(res.Err(), ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", res.Err())
	}
}

func TestRegisterDuplicateUsernameRacesToEmailExists(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "alice@example.com", "Correct-Horse-1", StatusNormal)

	// The email check passes, the store refuses the username.
	res := env.engine.Register(context.Background(), "other@example.com", "user1", "Correct-Horse-1")
	if res.Reason != ReasonEmailExists {
		t.Fatalf("expected email-exists from store conflict, got %s/%s", res.Kind, res.Reason)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, testConfig())

	cases := []struct{ email, username, password string }{
		{"not-an-email", "bob", "Correct-Horse-1"},
		{"bob@example.com", "  ", "Correct-Horse-1"},
		{"bob@example.com", "bob", "short"},
	}
	for _, c := range cases {
		res := env.engine.Register(context.Background(), c.email, c.username, c.password)
		if res.Reason != ReasonInvalidRequest {
			t.Fatalf("%+v: expected invalid-request, got %s/%s", c, res.Kind, res.Reason)
		}
	}
	if n, _ := env.store.Count(context.Background()); n != 0 {
		t.Fatalf("no account should be stored, got %d", n)
	}
}

func TestRegisterWithCacheDownWarns(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.mr.Close()

	res := env.engine.Register(context.Background(), "bob@example.com", "bob", "Correct-Horse-1")
	if !res.OK() {
		t.Fatalf("expected registration to succeed, got %s/%s", res.Kind, res.Reason)
	}
	if res.Warning != DeliveryWarning {
		t.Fatalf("expected delivery warning, got %q", res.Warning)
	}
	if res.Message() != DeliveryWarning {
		t.Fatalf("expected warning as message, got %q", res.Message())
	}
	if env.engine.metrics.Value(MetricCodeDeliveryFailed) != 1 {
		t.Fatal("expected delivery failure metric")
	}
}

func TestRegisterWithStoreDownIsUnavailable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.store.failing.Store(true)

	res := env.engine.Register(context.Background(), "bob@example.com", "bob", "Correct-Horse-1")
	if res.Kind != KindUnavailable {
		t.Fatalf("expected unavailable, got %s/%s", res.Kind, res.Reason)
	}
	if env.engine.metrics.Value(MetricAccountCreationUnavailable) != 1 {
		t.Fatal("expected creation unavailable metric")
	}
}

func TestIssueVerificationCodeEligibility(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	env.seed(t, "2", "done@example.com", "Correct-Horse-1", StatusNormal)
	env.seed(t, "3", "gone@example.com", "Correct-Horse-1", StatusRevoked)
	ctx := context.Background()

	res := env.engine.IssueVerificationCode(ctx, "new@example.com")
	if !res.OK() {
		t.Fatalf("expected code dispatch, got %s/%s", res.Kind, res.Reason)
	}
	if res.Message() != "OTP sent successfully. Please check your email to verify your account." {
		t.Fatalf("unexpected message %q", res.Message())
	}
	if res.Value.ExpiresAt.IsZero() {
		t.Fatal("expected expiry")
	}
	if code := env.mailer.nextCode(t); code != "042517" {
		t.Fatalf("unexpected code %q", code)
	}

	if r := env.engine.IssueVerificationCode(ctx, "nobody@example.com"); r.Reason != ReasonNotFound {
		t.Fatalf("expected not-found, got %s", r.Reason)
	}
	if r := env.engine.IssueVerificationCode(ctx, "done@example.com"); r.Reason != ReasonAlreadyVerified {
		t.Fatalf("expected already-verified, got %s", r.Reason)
	}
	if r := env.engine.IssueVerificationCode(ctx, "gone@example.com"); r.Reason != ReasonAccountRevoked {
		t.Fatalf("expected account-revoked, got %s", r.Reason)
	}
}

func TestIssueVerificationCodeThrottled(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if res := env.engine.IssueVerificationCode(ctx, "new@example.com"); !res.OK() {
			t.Fatalf("request %d: expected OK, got %s/%s", i, res.Kind, res.Reason)
		}
	}
	res := env.engine.IssueVerificationCode(ctx, "new@example.com")
	if res.Reason != ReasonRateLimited {
		t.Fatalf("expected rate-limited, got %s/%s", res.Kind, res.Reason)
	}
	if res.Message() != "Too many verification requests. Please try again later." {
		t.Fatalf("unexpected message %q", res.Message())
	}
	if env.engine.metrics.Value(MetricCodeRateLimited) != 1 {
		t.Fatal("expected rate-limited metric")
	}
}

func TestIssueVerificationCodeThrottlePerIP(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 5; i++ {
		env.seed(t, string(rune('a'+i)), string(rune('a'+i))+"@example.com", "Correct-Horse-1", StatusUnverified)
		if res := env.engine.IssueVerificationCode(ctx, string(rune('a'+i))+"@example.com"); !res.OK() {
			t.Fatalf("request %d: expected OK, got %s", i, res.Reason)
		}
	}
	env.seed(t, "z", "z@example.com", "Correct-Horse-1", StatusUnverified)
	if res := env.engine.IssueVerificationCode(ctx, "z@example.com"); res.Reason != ReasonRateLimited {
		t.Fatalf("expected per-IP rate limit, got %s", res.Reason)
	}
}

func TestIssueVerificationCodeThrottleFailsOpen(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	env.mr.Close()

	// The throttle lets the request through, then code issuance itself fails.
	res := env.engine.IssueVerificationCode(context.Background(), "new@example.com")
	if res.Kind != KindUnavailable {
		t.Fatalf("expected unavailable from code store, got %s/%s", res.Kind, res.Reason)
	}
}

func TestVerifyCodeRejectsMalformedAndUnknown(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	ctx := context.Background()

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		if res := env.engine.VerifyCode(ctx, "new@example.com", code); res.Reason != ReasonInvalidOrExpired {
			t.Fatalf("code %q: expected invalid-or-expired, got %s", code, res.Reason)
		}
	}
	if res := env.engine.VerifyCode(ctx, "nobody@example.com", "042517"); res.Reason != ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired for unknown address, got %s", res.Reason)
	}
}

func TestVerifyCodeConcurrentSubmissionsVerifyOnce(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		id := fmt.Sprintf("%d", round+1)
		email := fmt.Sprintf("racer%d@example.com", round)
		env.seed(t, id, email, "Correct-Horse-1", StatusUnverified)
		if err := env.mr.Set(stores.CodeKey(email, stores.PurposeEmailVerification), "042517"); err != nil {
			t.Fatalf("seed code: %v", err)
		}

		results := make([]Result[Verification], 8)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = env.engine.VerifyCode(ctx, email, "042517")
			}(i)
		}
		wg.Wait()

		verified := 0
		for _, res := range results {
			switch {
			case res.OK():
				verified++
			case res.Reason != ReasonInvalidOrExpired:
				t.Fatalf("round %d: unexpected %s/%s", round, res.Kind, res.Reason)
			}
		}
		if verified != 1 {
			t.Fatalf("round %d: code verified %d times, want 1", round, verified)
		}
		if env.store.status(t, id) != StatusNormal {
			t.Fatalf("round %d: account not activated", round)
		}
	}
}

func TestVerifyCodeWrongGuessKeepsCode(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	ctx := context.Background()

	if res := env.engine.IssueVerificationCode(ctx, "new@example.com"); !res.OK() {
		t.Fatalf("issue failed: %s", res.Reason)
	}
	if res := env.engine.VerifyCode(ctx, "new@example.com", "042518"); res.Reason != ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired, got %s", res.Reason)
	}
	if res := env.engine.VerifyCode(ctx, "new@example.com", "042517"); !res.OK() {
		t.Fatalf("expected the live code to still verify, got %s/%s", res.Kind, res.Reason)
	}
}

func TestVerifyCodeExpires(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	ctx := context.Background()

	if res := env.engine.IssueVerificationCode(ctx, "new@example.com"); !res.OK() {
		t.Fatalf("issue failed: %s", res.Reason)
	}
	env.mr.FastForward(env.engine.config.OTP.TTL + 1)

	if res := env.engine.VerifyCode(ctx, "new@example.com", "042517"); res.Reason != ReasonInvalidOrExpired {
		t.Fatalf("expected expired code rejection, got %s", res.Reason)
	}
}

func TestVerifyCodeOnRevokedAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "1", "new@example.com", "Correct-Horse-1", StatusUnverified)
	ctx := context.Background()

	if res := env.engine.IssueVerificationCode(ctx, "new@example.com"); !res.OK() {
		t.Fatalf("issue failed: %s", res.Reason)
	}
	if err := env.engine.gateway.setStatus(ctx, "1", StatusRevoked); err != nil {
		t.Fatalf("setStatus: %v", err)
	}
	if res := env.engine.VerifyCode(ctx, "new@example.com", "042517"); res.Reason != ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired, got %s", res.Reason)
	}
	if env.store.status(t, "1") != StatusRevoked {
		t.Fatal("revoked account must not be activated")
	}
}

func TestVerificationAuditTrail(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := WithRequestID(context.Background(), "req-1")

	if res := env.engine.Register(ctx, "bob@example.com", "bob", "Correct-Horse-1"); !res.OK() {
		t.Fatalf("register failed: %s", res.Reason)
	}
	env.mailer.nextCode(t)
	if res := env.engine.VerifyCode(ctx, "bob@example.com", "042517"); !res.OK() {
		t.Fatalf("verify failed: %s", res.Reason)
	}
	env.engine.Close()

	var types []string
	for {
		select {
		case ev := <-env.audit.Events():
			if ev.RequestID != "req-1" {
				t.Fatalf("event %s lost request id", ev.EventType)
			}
			if ev.Metadata["email"] == "bob@example.com" {
				t.Fatalf("event %s leaked the raw email", ev.EventType)
			}
			types = append(types, ev.EventType)
			continue
		default:
		}
		break
	}
	want := []string{auditEventAccountCreated, auditEventVerificationConfirmed}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestEngineCloseDoesNotWaitOnUnreadAuditSink(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.DrainTimeout = 100 * time.Millisecond
	_, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(newMemStore()).
		WithMailer(newCaptureMailer()).
		WithAuditSink(NewChannelSink(1)).
		WithCodeSource(constantCode(42517)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		email := fmt.Sprintf("quiet%d@example.com", i)
		if res := engine.Register(context.Background(), email, fmt.Sprintf("quiet%d", i), "Correct-Horse-1"); !res.OK() {
			t.Fatalf("register %s failed: %s", email, res.Reason)
		}
	}

	start := time.Now()
	engine.Close()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Close blocked for %v on an unread audit sink", elapsed)
	}
}
