package models

import "time"

// OTPRecord is the single live one-time passcode for an account. Only the salted hash is stored.
type OTPRecord struct {
	AccountID string
	CodeHash  string
	Salt      string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

// Expired reports whether the record is no longer usable at now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type OTPOutcome string

const (
	OTPOutcomeOK              OTPOutcome = "ok"
	OTPOutcomeNoRecord        OTPOutcome = "no_record"
	OTPOutcomeExpired         OTPOutcome = "expired"
	OTPOutcomeTooManyAttempts OTPOutcome = "too_many_attempts"
	OTPOutcomeMismatch        OTPOutcome = "mismatch"
)

// OTPVerification is the ledger's verdict on a submitted code.
// AttemptsLeft is only meaningful for OTPOutcomeMismatch.
type OTPVerification struct {
	Outcome      OTPOutcome
	AttemptsLeft int
}
