package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/threatintel-core/internal/dbpool"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"

	ErrCodePoolClosed    = "pool_closed"
	ErrCodePoolExhausted = "pool_exhausted"
	ErrCodeQueryTimeout  = "query_timeout"
	ErrCodeDatabase      = "database_error"
)

// poolErrorCode maps a pool error to its public code. Driver messages never
// leave the process.
func poolErrorCode(err error) string {
	switch {
	case errors.Is(err, dbpool.ErrPoolClosed):
		return ErrCodePoolClosed
	case errors.Is(err, dbpool.ErrPoolExhausted):
		return ErrCodePoolExhausted
	case errors.Is(err, dbpool.ErrQueryTimeout):
		return ErrCodeQueryTimeout
	default:
		return ErrCodeDatabase
	}
}

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

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response for a pool error.
func writeUnavailable(w http.ResponseWriter, err error, message string) {
	writeError(w, http.StatusServiceUnavailable, poolErrorCode(err), message)
}
