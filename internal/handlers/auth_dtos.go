package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/BradenHooton/riskauth/internal/services"
	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
)

// DeviceIDHeader lets clients that cannot put the device identifier in the body send it as a header.
const DeviceIDHeader = "X-Device-ID"

// SignalRequest is the client-reported context of an attempt. The IP address
// is always taken from the connection, never from the body.
type SignalRequest struct {
	Country   string   `json:"country" validate:"omitempty,max=100"`
	Region    string   `json:"region" validate:"omitempty,max=100"`
	City      string   `json:"city" validate:"omitempty,max=100"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	DeviceID  string   `json:"device_id" validate:"omitempty,max=255"`
	UserAgent string   `json:"user_agent" validate:"omitempty,max=512"`
	ASN       string   `json:"asn" validate:"omitempty,max=64"`
	Org       string   `json:"org" validate:"omitempty,max=255"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string        `json:"email" validate:"required,email,max=254"`
	Password string        `json:"password" validate:"required,max=72"`
	Signal   SignalRequest `json:"signal"`
}

// VerifyOTPRequest represents the request body for OTP verification
type VerifyOTPRequest struct {
	Email  string         `json:"email" validate:"required,email,max=254"`
	OTP    string         `json:"otp" validate:"required,len=6,numeric"`
	Signal *SignalRequest `json:"signal,omitempty"`
}

// ResendOTPRequest represents the request body for resending an OTP
type ResendOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// SetPasswordRequest represents the request body for consuming a password-set link
type SetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

// AssessRequest represents the request body for a standalone risk assessment
type AssessRequest struct {
	Email  string        `json:"email" validate:"required,email,max=254"`
	Signal SignalRequest `json:"signal"`
}

// LoginResponse is returned when a login or challenge is admitted
type LoginResponse struct {
	Status    services.LoginStatus  `json:"status"`
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expires_at"`
	Risk      *services.RiskSummary `json:"risk,omitempty"`
}

// ChallengeResponse is returned when the login needs a second factor
type ChallengeResponse struct {
	Status    services.LoginStatus `json:"status"`
	Message   string               `json:"message"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// MessageResponse carries a single human-readable message
type MessageResponse struct {
	Message string `json:"message"`
}

// toSignal merges the body-reported context with what the server observed.
func (s *SignalRequest) toSignal(r *http.Request, ipConfig *pkghttp.IPConfig) models.LoginSignal {
	var sig models.LoginSignal
	if s != nil {
		sig = models.LoginSignal{
			Location: models.Location{
				Country:   strings.ToUpper(strings.TrimSpace(s.Country)),
				Region:    strings.TrimSpace(s.Region),
				City:      strings.TrimSpace(s.City),
				Latitude:  s.Latitude,
				Longitude: s.Longitude,
			},
			DeviceID:  strings.TrimSpace(s.DeviceID),
			UserAgent: s.UserAgent,
			ASN:       s.ASN,
			Org:       s.Org,
		}
	}

	sig.IP = pkghttp.ExtractClientIP(r, ipConfig)
	if sig.UserAgent == "" {
		sig.UserAgent = r.Header.Get("User-Agent")
	}
	if sig.DeviceID == "" {
		sig.DeviceID = strings.TrimSpace(r.Header.Get(DeviceIDHeader))
	}
	return sig
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
