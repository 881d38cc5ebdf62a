// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/log"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteErrorWithDetails(w, status, errCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// WriteDomainError maps an error returned by the series operations to a
// status code. Store failures and unclassified errors are logged and hidden
// behind a generic message.
func WriteDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindStore {
		log.Error("request failed", err)
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
		return
	}

	msg := de.Msg
	if msg == "" {
		msg = de.Error()
	}
	switch de.Kind {
	case domain.KindValidation:
		WriteError(w, http.StatusBadRequest, ErrValidation, msg)
	case domain.KindNotFound:
		WriteError(w, http.StatusNotFound, ErrNotFound, msg)
	case domain.KindConflict:
		WriteError(w, http.StatusConflict, ErrConflict, msg)
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, msg)
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered", fmt.Errorf("%v", rec), "path", r.URL.Path, "stack", string(debug.Stack()))
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Common error codes
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrConflict      = "conflict"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
)
