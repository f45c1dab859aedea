package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
	assert.Nil(t, resp.BannedUntil)
	assert.Nil(t, resp.AttemptsLeft)
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteErrorWithDetails(w, 400, "test_error", "Test message", "Additional details")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Additional details", resp.Details)
}

func TestCommonErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter, string)
		wantStatus int
		wantCode   string
	}{
		{"bad request", pkghttp.WriteBadRequest, 400, "bad_request"},
		{"unauthorized", pkghttp.WriteUnauthorized, 401, "unauthorized"},
		{"forbidden", pkghttp.WriteForbidden, 403, "forbidden"},
		{"not found", pkghttp.WriteNotFound, 404, "not_found"},
		{"conflict", pkghttp.WriteConflict, 409, "conflict"},
		{"too many requests", pkghttp.WriteTooManyRequests, 429, "rate_limit_exceeded"},
		{"internal", pkghttp.WriteInternalError, 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "some message")

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
			assert.Equal(t, "some message", resp.Message)
		})
	}
}

func TestWriteBanned(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	w := httptest.NewRecorder()
	pkghttp.WriteBanned(w, until, now, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "account_banned", resp.Error)
	require.NotNil(t, resp.BannedUntil)
	assert.True(t, until.Equal(*resp.BannedUntil))
	assert.Equal(t, int64(900), resp.RetryAfterSeconds)
	assert.Empty(t, resp.Details)
}

func TestWriteBanned_CarriesOTPOutcome(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	w := httptest.NewRecorder()
	pkghttp.WriteBanned(w, now.Add(15*time.Minute), now, "too_many_attempts")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "account_banned", resp.Error)
	assert.Equal(t, "too_many_attempts", resp.Details)
}

func TestWriteBanned_RoundsUpAndFloorsAtOneSecond(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	w := httptest.NewRecorder()
	pkghttp.WriteBanned(w, now.Add(1500*time.Millisecond), now, "")
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	pkghttp.WriteBanned(w, now.Add(-time.Second), now, "")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestWriteInvalidOTP(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteInvalidOTP(w, "Invalid OTP", 0)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// attempts_left must be present even when zero
	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "invalid_otp", raw["error"])
	assert.Contains(t, raw, "attempts_left")
	assert.EqualValues(t, 0, raw["attempts_left"])
	assert.NotContains(t, raw, "banned_until")
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "challenge_required"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"challenge_required"}`, w.Body.String())
}
