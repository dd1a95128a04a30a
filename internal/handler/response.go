// Package handler translates HTTP requests into service calls and service
// results into JSON.
//
// Handlers stay thin: decode the request, call one service method, write
// the result. Every error goes through writeError, which maps apperror
// sentinels to status codes and hides everything else behind a generic 500.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/auth"
)

// maxJSONBody caps request bodies decoded by decodeJSON.
const maxJSONBody = 64 << 10

// ErrorResponse is the shape of every error body:
//
//	{"error": "not_found", "message": "issue not found with id abc123"}
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input, for validation errors
}

// writeJSON sends data as JSON. Headers and status must go out before the
// body, so encoding failures can only be logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status. errors.Is walks the
// wrap chain, so a service may add context with %w freely.
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401
//	ErrForbidden    → 403
//	ErrNotFound     → 404
//	ErrConflict     → 409
//	ErrPrecondition → 409
//
// Anything else is a 500 whose detail stays in the logs.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := http.StatusInternalServerError, "internal_error"
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status, kind = http.StatusBadRequest, "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status, kind = http.StatusUnauthorized, "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status, kind = http.StatusForbidden, "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status, kind = http.StatusNotFound, "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status, kind = http.StatusConflict, "conflict"
		case errors.Is(err, apperror.ErrPrecondition):
			status, kind = http.StatusConflict, "precondition_failed"
		}
		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message, Field: appErr.Field})
			return
		}
	}

	// NEVER expose internal error details: they can carry SQL, tokens or
	// upstream responses.
	slog.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into v. A malformed body is a validation
// error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}

// userID returns the authenticated user. Routes that call it sit behind
// auth.RequireAuth, so a missing ID is a wiring bug and answers 401.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
	}
	return id, ok
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter; nil means absent.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.ValidationFailed(name, name+" must be true or false")
	}
	return &b, nil
}
