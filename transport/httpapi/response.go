package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/accessgate"
)

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: status, Message: message, Data: data})
}

func writeResult[T any](w http.ResponseWriter, okStatus int, res accessgate.Result[T], data func(T) any) {
	if res.OK() {
		var payload any
		if data != nil {
			payload = data(res.Value)
		}
		writeJSON(w, okStatus, res.Message(), payload)
		return
	}
	writeJSON(w, statusFor(res.Kind, res.Reason), res.Message(), nil)
}

func statusFor(kind accessgate.Kind, reason accessgate.Reason) int {
	if kind == accessgate.KindUnavailable {
		return http.StatusServiceUnavailable
	}
	switch reason {
	case accessgate.ReasonInvalidCredentials:
		return http.StatusUnauthorized
	case accessgate.ReasonEmailNotVerified, accessgate.ReasonAccountRevoked, accessgate.ReasonAlreadyVerified:
		return http.StatusForbidden
	case accessgate.ReasonNotFound:
		return http.StatusNotFound
	case accessgate.ReasonEmailExists:
		return http.StatusConflict
	case accessgate.ReasonRateLimited:
		return http.StatusTooManyRequests
	case accessgate.ReasonInvalidOrExpired, accessgate.ReasonInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}
