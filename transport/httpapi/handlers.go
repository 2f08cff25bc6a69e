package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/middleware"
	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,password_strength"`
}

type otpRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type otpVerification struct {
	Email   string `json:"email" validate:"required,email"`
	OTPCode string `json:"otpCode" validate:"required,len=6,numeric"`
}

type loginResponse struct {
	Token            string    `json:"token"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type currentUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type healthResponse struct {
	Store    string            `json:"store"`
	Redis    string            `json:"redis"`
	Pools    string            `json:"pools"`
	Breakers map[string]string `json:"breakers"`
}

// decode reads a single JSON object and validates it. It writes the 400
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, "Request body must contain a single JSON object", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, validationMessage(err), nil)
		return false
	}
	return true
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.svc.Login(r.Context(), strings.TrimSpace(req.Email), req.Password, req.RememberMe)
	writeResult(w, http.StatusOK, res, func(t accessgate.Tokens) any {
		return loginResponse{
			Token:            t.AccessToken,
			RefreshToken:     t.RefreshToken,
			AccessExpiresAt:  t.AccessExpiresAt,
			RefreshExpiresAt: t.RefreshExpiresAt,
		}
	})
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.svc.Register(r.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(req.Username), req.Password)
	writeResult(w, http.StatusCreated, res, func(reg accessgate.Registration) any {
		return reg.Account
	})
}

func (h *Handler) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.svc.IssueVerificationCode(r.Context(), strings.TrimSpace(req.Email))
	writeResult[accessgate.CodeDispatch](w, http.StatusOK, res, nil)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerification
	if !h.decode(w, r, &req) {
		return
	}
	res := h.svc.VerifyCode(r.Context(), strings.TrimSpace(req.Email), req.OTPCode)
	writeResult[accessgate.Verification](w, http.StatusOK, res, nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "User not authenticated", nil)
		return
	}
	username := id.Username
	if username == "" {
		username = "Unknown"
	}
	writeJSON(w, http.StatusOK, "Current user info retrieved", currentUser{UserID: id.AccountID, Username: username})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	res := h.svc.GetAccount(r.Context(), chi.URLParam(r, "userId"))
	if !res.OK() {
		writeResult[accessgate.AccountView](w, http.StatusOK, res, nil)
		return
	}
	writeJSON(w, http.StatusOK, "User retrieved successfully", res.Value)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Health(r.Context())
	body := healthResponse{
		Store:    upDown(st.StoreAvailable),
		Redis:    upDown(st.RedisAvailable),
		Pools:    upDown(st.PoolsHealthy),
		Breakers: st.Breakers,
	}
	if !st.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, "degraded", body)
		return
	}
	writeJSON(w, http.StatusOK, "ok", body)
}

func upDown(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}
