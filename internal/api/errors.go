package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pyrohost/pyrod/internal/console"
	"github.com/pyrohost/pyrod/internal/egg"
	"github.com/pyrohost/pyrod/internal/files"
	"github.com/pyrohost/pyrod/internal/instance"
	"github.com/pyrohost/pyrod/internal/sandbox"
	"github.com/pyrohost/pyrod/internal/server"
)

// Error codes returned in API responses
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeEngineError   = "ENGINE_ERROR"
	ErrCodeInstallFailed = "INSTALL_FAILED"
	ErrCodeTooLarge      = "TOO_LARGE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// APIError is the structured error body.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// writeAPIError maps domain sentinel errors onto HTTP statuses.
func writeAPIError(w http.ResponseWriter, err error) {
	code := ErrCodeInternalError
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, instance.ErrNotFound),
		errors.Is(err, egg.ErrNotFound),
		errors.Is(err, files.ErrNotFound):
		code, status = ErrCodeNotFound, http.StatusNotFound

	case errors.Is(err, instance.ErrInvalid),
		errors.Is(err, egg.ErrInvalid),
		errors.Is(err, sandbox.ErrBadPath):
		code, status = ErrCodeBadRequest, http.StatusBadRequest

	case errors.Is(err, server.ErrConflict),
		errors.Is(err, console.ErrNotRunning):
		code, status = ErrCodeConflict, http.StatusConflict

	case errors.Is(err, server.ErrInstallFailed):
		code, status = ErrCodeInstallFailed, http.StatusInternalServerError

	case errors.Is(err, server.ErrEngine):
		code, status = ErrCodeEngineError, http.StatusBadGateway

	case errors.Is(err, files.ErrTooLarge):
		code, status = ErrCodeTooLarge, http.StatusRequestEntityTooLarge
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{Code: code, Message: err.Error()})
}

// writeValidationError writes a 400 with a literal message.
func writeValidationError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{Code: ErrCodeBadRequest, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
