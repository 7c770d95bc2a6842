package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"cyberswap/core/host"
	"cyberswap/native/common"
	"cyberswap/native/escrow"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// statusFor maps a backend failure to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, host.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	}
	var typed *escrow.Error
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError, "generic"
	}
	switch typed.Kind {
	case escrow.KindUnauthorized:
		return http.StatusForbidden, "unauthorized"
	case escrow.KindNotFound:
		return http.StatusNotFound, "not_found"
	case escrow.KindInvalidState:
		return http.StatusConflict, "invalid_state"
	case escrow.KindValidation:
		return http.StatusBadRequest, "validation"
	case escrow.KindOverflow:
		return http.StatusUnprocessableEntity, "overflow"
	default:
		return http.StatusInternalServerError, "generic"
	}
}

func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", requestIDFrom(r.Context()), "kind", code, "error", err)
	}
	writeError(w, status, code, err.Error())
}
