package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/storesync/internal/core"
	"github.com/JonMunkholm/storesync/internal/logging"
)

// ErrorResponse is the JSON body of a rejected request. Code is the support
// reference from core.MapError.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var storeErr *core.StoreError
	switch {
	case errors.Is(err, core.ErrInvalidPayload), errors.Is(err, core.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyBatches):
		return http.StatusServiceUnavailable
	case errors.As(err, &storeErr) && storeErr.Kind == core.KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error with the request's context and
// writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if errors.Is(err, core.ErrTooManyBatches) {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
