package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/BradenHooton/riskauth/internal/services"
	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgChallengeSent      = "Additional verification required. An OTP has been sent to your email."
	msgResendAccepted     = "If the email exists, an OTP has been sent."
	msgInvalidOTP         = "Invalid or expired OTP"
	msgTooManyOTPAttempts = "Too many attempts. Please sign in again to request a new OTP."
)

// LoginServiceInterface defines the risk-scored login flow
type LoginServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	VerifyChallenge(ctx context.Context, in services.VerifyInput) (*services.LoginResult, error)
	ResendChallenge(ctx context.Context, email string) error
	Assess(ctx context.Context, email string, signal models.LoginSignal) (*services.RiskAssessmentResult, error)
}

// PasswordServiceInterface defines password-set link consumption
type PasswordServiceInterface interface {
	SetPassword(ctx context.Context, token, password string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	loginService    LoginServiceInterface
	passwordService PasswordServiceInterface
	ipConfig        *pkghttp.IPConfig
	now             func() time.Time
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(loginService LoginServiceInterface, passwordService PasswordServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		loginService:    loginService,
		passwordService: passwordService,
		ipConfig:        ipConfig,
		now:             time.Now,
	}
}

// Login handles POST /api/auth/login
// @Summary Risk-scored login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Success 202 {object} ChallengeResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.loginService.Login(r.Context(), services.LoginInput{
		Email:    normalizeEmail(req.Email),
		Password: req.Password,
		Signal:   req.Signal.toSignal(r, h.ipConfig),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.writeLoginResult(w, result)
}

// VerifyOTP handles POST /api/auth/otp/verify
// @Summary Complete a login challenge
// @Accept json
// @Param request body VerifyOTPRequest true "OTP verification request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /api/auth/otp/verify [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	in := services.VerifyInput{
		Email: normalizeEmail(req.Email),
		Code:  req.OTP,
	}
	if req.Signal != nil {
		sig := req.Signal.toSignal(r, h.ipConfig)
		in.Signal = &sig
	}

	result, err := h.loginService.VerifyChallenge(r.Context(), in)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Status:    result.Status,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

// ResendOTP handles POST /api/auth/otp/resend. The answer never reveals
// whether the account exists or has a pending challenge.
// @Summary Re-send a pending login code
// @Accept json
// @Param request body ResendOTPRequest true "Resend request"
// @Produce json
// @Success 202 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /api/auth/otp/resend [post]
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.loginService.ResendChallenge(r.Context(), normalizeEmail(req.Email)); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: msgResendAccepted})
}

// SetPassword handles POST /api/auth/password/set
// @Summary Set a password from an emailed link
// @Accept json
// @Param request body SetPasswordRequest true "Set password request"
// @Success 204
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /api/auth/password/set [post]
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req SetPasswordRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.passwordService.SetPassword(r.Context(), req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid or expired link")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeLoginResult(w http.ResponseWriter, result *services.LoginResult) {
	if result.Status == services.LoginStatusChallengeRequired {
		pkghttp.WriteJSON(w, http.StatusAccepted, ChallengeResponse{
			Status:    result.Status,
			Message:   msgChallengeSent,
			ExpiresAt: result.ChallengeExpiresAt,
		})
		return
	}

	risk := result.Risk
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Status:    result.Status,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Risk:      &risk,
	})
}

// writeLoginError maps login and challenge failures. Credential failures are
// deliberately generic so they do not reveal which part was wrong.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var (
		banned   *models.BannedError
		rejected *models.OTPRejectedError
	)
	switch {
	case errors.As(err, &banned):
		pkghttp.WriteBanned(w, banned.Until, h.now(), string(banned.Outcome))
	case errors.As(err, &rejected):
		writeOTPRejected(w, rejected)
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, msgInvalidCredentials)
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func writeOTPRejected(w http.ResponseWriter, rejected *models.OTPRejectedError) {
	switch rejected.Outcome {
	case models.OTPOutcomeTooManyAttempts:
		pkghttp.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", msgTooManyOTPAttempts)
	case models.OTPOutcomeMismatch:
		pkghttp.WriteInvalidOTP(w, fmt.Sprintf("Invalid OTP. %d attempts left.", rejected.AttemptsLeft), rejected.AttemptsLeft)
	default:
		pkghttp.WriteInvalidOTP(w, msgInvalidOTP, 0)
	}
}
