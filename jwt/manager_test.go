package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newHSManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    12 * time.Hour,
		RememberMeTTL: 5 * 24 * time.Hour,
		PrivateKey:    testSecret,
		Issuer:        "accessgate",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndParse(t *testing.T) {
	m := newHSManager(t)
	id := Identity{AccountID: "42", Username: "neo", Email: "neo@x.com"}

	pair, err := m.Issue(id, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Parse(pair.AccessToken, TypeAccess)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "neo" || claims.UID != "42" || claims.Email != "neo@x.com" || claims.Type != TypeAccess {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := m.Parse(pair.RefreshToken, TypeRefresh); err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if _, err := m.Parse(pair.RefreshToken, TypeAccess); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestRememberMeLengthensRefresh(t *testing.T) {
	m := newHSManager(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	id := Identity{AccountID: "1", Username: "u", Email: "u@x.com"}

	short, _ := m.Issue(id, false)
	long, _ := m.Issue(id, true)

	if got := short.AccessExpiresAt.Sub(fixed); got != 15*time.Minute {
		t.Fatalf("access ttl = %v", got)
	}
	if got := short.RefreshExpiresAt.Sub(fixed); got != 12*time.Hour {
		t.Fatalf("refresh ttl = %v", got)
	}
	if got := long.RefreshExpiresAt.Sub(fixed); got != 5*24*time.Hour {
		t.Fatalf("remember-me ttl = %v", got)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newHSManager(t)
	_, priv, _ := ed25519.GenerateKey(rand.Reader)

	claims := Claims{UID: "1", Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "accessgate",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredAndForeignIssuer(t *testing.T) {
	m := newHSManager(t)

	sign := func(c Claims) string {
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, c).SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	expired := sign(Claims{UID: "1", Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "accessgate",
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Hour)),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := m.Parse(expired, TypeAccess); err == nil {
		t.Fatal("expected expired token to fail")
	}

	foreign := sign(Claims{UID: "1", Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "someone-else",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	if _, err := m.Parse(foreign, TypeAccess); err == nil {
		t.Fatal("expected foreign issuer to fail")
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	pair, err := m.Issue(Identity{AccountID: "9", Username: "u", Email: "u@x.com"}, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(pair.AccessToken, TypeAccess); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, PrivateKey: []byte("short")})
	if err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
}
