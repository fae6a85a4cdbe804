package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/amcp"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/plugin"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/sequence"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
)

// Error represents a structured error response for non-command routes.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
)

// ErrUnknownMethod is returned for commands outside the method table.
var ErrUnknownMethod = errors.New("api: unknown method")

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// statusFor maps a command error to the response code. This is the only
// place domain errors meet HTTP semantics.
func statusFor(err error) int {
	var perr *amcp.ProtocolError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownMethod),
		errors.Is(err, controller.ErrUnsupportedKey):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrMissingArgument),
		errors.Is(err, session.ErrLiveSourceMissing),
		errors.Is(err, session.ErrVirtualItem),
		errors.Is(err, plugin.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, session.ErrNotPlayable),
		errors.Is(err, sequence.ErrNoCandidate):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrLiveForbidden),
		errors.Is(err, controller.ErrNoCurrentItem),
		errors.Is(err, controller.ErrNothingCued):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusBadGateway
	case amcp.IsConnectionError(err), errors.Is(err, amcp.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
