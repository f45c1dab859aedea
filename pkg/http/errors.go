package http

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context

	// Set on account_banned responses
	BannedUntil       *time.Time `json:"banned_until,omitempty"`
	RetryAfterSeconds int64      `json:"retry_after_seconds,omitempty"`

	// Set on invalid_otp responses
	AttemptsLeft *int `json:"attempts_left,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes a fully populated error response
func WriteErrorResponse(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	WriteJSON(w, statusCode, resp)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteErrorResponse(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteBanned writes a 403 account_banned response and a Retry-After header.
// details carries the triggering OTP outcome, if any.
func WriteBanned(w http.ResponseWriter, until, now time.Time, details string) {
	retry := int64(math.Ceil(until.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	until = until.UTC()

	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	WriteErrorResponse(w, http.StatusForbidden, ErrorResponse{
		Error:             "account_banned",
		Message:           "Account temporarily locked due to suspicious activity. Please try again later.",
		Details:           details,
		BannedUntil:       &until,
		RetryAfterSeconds: retry,
	})
}

// WriteInvalidOTP writes a 400 invalid_otp response carrying the remaining attempts.
func WriteInvalidOTP(w http.ResponseWriter, message string, attemptsLeft int) {
	WriteErrorResponse(w, http.StatusBadRequest, ErrorResponse{
		Error:        "invalid_otp",
		Message:      message,
		AttemptsLeft: &attemptsLeft,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
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
