package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error             string `json:"error"`                        // Machine-readable error code
	Message           string `json:"message"`                      // Human-readable message
	Details           string `json:"details,omitempty"`            // Optional additional context
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"` // Set on credential failures
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteLoginFailure reports rejected credentials together with the attempts left
// before the device is blocked.
func WriteLoginFailure(w http.ResponseWriter, remaining int) {
	if remaining <= 0 {
		WriteDeviceBlocked(w, "Too many failed attempts. This device has been blocked.")
		return
	}
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:             "invalid_credentials",
		Message:           "Invalid username or password",
		RemainingAttempts: &remaining,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

// WriteDeviceBlocked signals a locked-out fingerprint so clients can render the blocked state.
func WriteDeviceBlocked(w http.ResponseWriter, message string) {
	zero := 0
	WriteJSON(w, http.StatusForbidden, ErrorResponse{
		Error:             "device_blocked",
		Message:           message,
		RemainingAttempts: &zero,
	})
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
