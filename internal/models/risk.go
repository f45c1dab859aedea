package models

import "time"

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// Location is the geographic context of a login attempt.
type Location struct {
	Country   string   `json:"country,omitempty"`
	Region    string   `json:"region,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// LoginSignal is the contextual information submitted with a single attempt. It is never stored
// on its own; it is folded into the RiskRecord snapshot written for the attempt.
type LoginSignal struct {
	IP string `json:"ip,omitempty"`
	Location
	DeviceID  string    `json:"device_id,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	ASN       string    `json:"asn,omitempty"`
	Org       string    `json:"org,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RiskRecord is an immutable snapshot of an account's risk state after one attempt.
// The current state of an account is its most recently appended record.
type RiskRecord struct {
	ID              string
	Seq             int64
	AccountID       string
	IP              string
	UserAgent       string
	DeviceID        string
	Location        Location
	RiskScore       int
	RiskLevel       RiskLevel
	Reason          string
	Reasons         []string
	FailedOTPCount  int
	BannedUntil     *time.Time
	LastLoginAt     time.Time
	IsTrustedDevice bool
	IsFirstLogin    bool
	CreatedAt       time.Time
}

// BannedAt reports whether the record carries a ban that is still active at now.
func (r *RiskRecord) BannedAt(now time.Time) bool {
	return r != nil && r.BannedUntil != nil && r.BannedUntil.After(now)
}

// RiskLevelCount is one bucket of the risk-level distribution.
type RiskLevelCount struct {
	RiskLevel RiskLevel `json:"risk_level"`
	Count     int64     `json:"count"`
}

// DailyLoginCount is the number of recorded attempts on a UTC day.
type DailyLoginCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}
