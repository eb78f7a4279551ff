// Package middleware provides HTTP middleware and response helpers for the API.
package middleware

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/hostel-listings/backend/internal/lifecycle"
	"github.com/hostel-listings/backend/internal/listing"
)

// Response is the envelope every API response is wrapped in.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes a successful envelope with the given status code.
func WriteJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteErrorWithDetails(w, status, errCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// WriteServiceError maps listing and lifecycle errors onto HTTP responses.
func WriteServiceError(w http.ResponseWriter, err error) {
	var verr *listing.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteErrorWithDetails(w, http.StatusBadRequest, ErrValidation,
			"Missing or invalid fields: "+strings.Join(verr.Fields, ", "), verr.Fields)
	case errors.Is(err, listing.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrNotFound, "Listing not found")
	case errors.Is(err, lifecycle.ErrDeletionInProgress):
		WriteError(w, http.StatusConflict, ErrConflict, "Listing is already being deleted")
	case errors.Is(err, listing.ErrTransport):
		log.Printf("Row store unavailable: %v", err)
		WriteError(w, http.StatusBadGateway, ErrUpstream, "Listing store is unavailable, try again shortly")
	default:
		log.Printf("Unexpected error: %v", err)
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v\n%s", err, debug.Stack())
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
	ErrUnauthorized  = "unauthorized"
	ErrRateLimited   = "rate_limited"
	ErrUpstream      = "upstream_unavailable"
)
