package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT FORMAT:
// Every successful response has the same envelope:
//   {"status": "success", "data": ..., "notice": {"kind": "success", "message": "Review submitted"}}
//
// and every error response has the same shape:
//   {"error": "not_found", "message": "booklist not found with id abc123",
//    "notice": {"kind": "error", "message": "booklist not found with id abc123"}}
//
// The notice is the transient acknowledgment the front-end shows after a
// mutation. Reads leave it out.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/validation"
)

// maxBodyBytes bounds request bodies. Every form in the app is tiny.
const maxBodyBytes = 1 << 20

// Notice is a user-visible acknowledgment of a mutation.
type Notice struct {
	Kind    string `json:"kind"` // "success" or "error"
	Message string `json:"message"`
}

// Envelope is the success response.
type Envelope struct {
	Status string  `json:"status"`
	Data   any     `json:"data,omitempty"`
	Notice *Notice `json:"notice,omitempty"`
}

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string  `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string  `json:"message"` // Human-readable description
	Notice  *Notice `json:"notice,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, the headers are sent and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are gone already; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeData sends a read result.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Status: "success", Data: data})
}

// writeDone sends a mutation result with its success notice.
func writeDone(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, Envelope{
		Status: "success",
		Data:   data,
		Notice: &Notice{Kind: "success", Message: message},
	})
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.Is() walks the whole chain, so a service error like
//
//	fmt.Errorf("service/review: submitting: %w", apperror.ValidationFailed(...))
//
// still maps to 400.
//
// Errors without an AppError in the chain come from the database or the book
// provider. They are reported as 500 with the innermost message, which is the
// backend's own wording ("database is locked") without our wrapping context.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := classify(err)

	message := backendMessage(err)
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: message,
		Notice:  &Notice{Kind: "error", Message: message},
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// backendMessage returns the message of the innermost error in a plain
// %w chain.
func backendMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// decodeJSON reads a JSON body into dst and validates it. Any failure is a
// validation error, so the caller can pass it straight to writeError.
func decodeJSON(r *http.Request, v *validation.Validator, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	if v == nil {
		return nil
	}
	return v.Validate(dst)
}
