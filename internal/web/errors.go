package web

// errors.go provides unified error response handling for the web layer.
//
// Every failed operation renders the same envelope:
//
//	{"ok": false, "error_code": "...", "message": "...", "error_details": {...}}
//
// The error_code is the engine's stable taxonomy code; the HTTP status is
// derived from it. The technical error is logged server-side with the chi
// request id so client reports can be correlated with logs.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/variantlabs/imagesync/internal/core"
)

// ErrorResponse is the JSON failure envelope.
type ErrorResponse struct {
	OK           bool           `json:"ok"`
	ErrorCode    core.Code      `json:"error_code"`
	Message      string         `json:"message,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
}

// statusForCode maps taxonomy codes to HTTP status codes.
func statusForCode(code core.Code) int {
	switch code {
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeDuplicate:
		return http.StatusConflict
	case core.CodeInvalidPayload:
		return http.StatusBadRequest
	case core.CodeMissingEnv:
		return http.StatusServiceUnavailable
	case core.CodeUpstreamUnavailable, core.CodeNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondOpError classifies err, logs it with request context, and writes
// the failure envelope.
func respondOpError(w http.ResponseWriter, r *http.Request, err error) {
	opErr := core.MapError(err)

	status := statusForCode(opErr.Code)
	if errors.Is(err, core.ErrTooManyUploads) {
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", "30")
	}

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error_code", opErr.Code,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	respondEnvelope(w, opErr.Code, opErr.Message, status)
}

func respondEnvelope(w http.ResponseWriter, code core.Code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{OK: false, ErrorCode: code, Message: message}); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
