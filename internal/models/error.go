package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// BannedError reports a temporary ban. Until is exposed to clients so they can back off.
type BannedError struct {
	Until time.Time
	// Outcome is the OTP verdict that tipped the account into the ban; empty for risk bans.
	Outcome OTPOutcome
}

func (e *BannedError) Error() string {
	return fmt.Sprintf("account temporarily banned until %s", e.Until.UTC().Format(time.RFC3339))
}

// RetryAfter returns the remaining ban duration relative to now, never negative.
func (e *BannedError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// OTPRejectedError is returned when a submitted one-time passcode is not accepted.
type OTPRejectedError struct {
	Outcome      OTPOutcome
	AttemptsLeft int
}

func (e *OTPRejectedError) Error() string {
	if e.Outcome == OTPOutcomeMismatch {
		return fmt.Sprintf("otp rejected: %s (%d attempts left)", e.Outcome, e.AttemptsLeft)
	}
	return fmt.Sprintf("otp rejected: %s", e.Outcome)
}
