package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/accessgate"
)

// AccessValidator is satisfied by *accessgate.Engine.
type AccessValidator interface {
	ValidateAccess(token string) (accessgate.AccessIdentity, error)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by RequireAccess.
func IdentityFromContext(ctx context.Context) (accessgate.AccessIdentity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(accessgate.AccessIdentity)
	return id, ok
}

// RequireAccess rejects requests without a valid bearer access token. The
// token is verified locally; no store or cache is touched.
func RequireAccess(v AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			id, err := v.ValidateAccess(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="accessgate"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	}{Code: http.StatusUnauthorized, Message: "Unauthorized"})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
