package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/BradenHooton/riskauth/internal/risk"
	pkglogger "github.com/BradenHooton/riskauth/pkg/logger"
)

const (
	DefaultBanDuration  = 15 * time.Minute
	DefaultMaxFailedOTP = 3

	BannedReason         = "User is temporarily banned"
	OTPVerifiedReason    = "OTP verified"
	OTPFailedReason      = "OTP verification failed"
	OTPEscalatedReason   = "Too many failed OTP attempts"
	emailDispatchTimeout = 30 * time.Second
)

// CredentialVerifier is the identity provider as seen by the login flow.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// RiskHistory is the append-only store of risk snapshots.
type RiskHistory interface {
	FindLatest(ctx context.Context, accountID string) (*models.RiskRecord, error)
	Append(ctx context.Context, record *models.RiskRecord) (*models.RiskRecord, error)
	FindTrustedDevices(ctx context.Context, accountID string) ([]string, error)
}

// ChallengeLedger issues and checks one-time passcodes.
type ChallengeLedger interface {
	Issue(ctx context.Context, accountID string) (string, time.Time, error)
	Verify(ctx context.Context, accountID, code string) (models.OTPVerification, error)
	Pending(ctx context.Context, accountID string) (bool, error)
	Revoke(ctx context.Context, accountID string) error
}

// SessionIssuer mints the token returned on admission.
type SessionIssuer interface {
	GenerateSessionToken(user *models.User) (string, time.Time, error)
}

// SignalEnricher fills signal fields the client did not supply.
type SignalEnricher interface {
	Enrich(signal models.LoginSignal) models.LoginSignal
}

// LoginConfig holds the ban policy.
type LoginConfig struct {
	BanDuration  time.Duration
	MaxFailedOTP int
}

type LoginStatus string

const (
	LoginStatusAdmitted          LoginStatus = "admitted"
	LoginStatusChallengeRequired LoginStatus = "challenge_required"
)

// LoginInput is one primary-credential attempt.
type LoginInput struct {
	Email    string
	Password string
	Signal   models.LoginSignal
}

// VerifyInput is one OTP submission. A nil Signal reuses the context of the
// attempt that raised the challenge.
type VerifyInput struct {
	Email  string
	Code   string
	Signal *models.LoginSignal
}

// RiskSummary is the client-facing part of an assessment.
type RiskSummary struct {
	Score   int              `json:"score"`
	Level   models.RiskLevel `json:"level"`
	Reason  string           `json:"reason"`
	Reasons []string         `json:"reasons"`
}

// LoginResult is the outcome of a login or challenge that did not fail.
type LoginResult struct {
	Status             LoginStatus
	UserID             string
	Token              string
	ExpiresAt          time.Time
	ChallengeExpiresAt time.Time
	Risk               RiskSummary
}

// RiskAssessmentResult is the answer of the standalone assessment.
type RiskAssessmentResult struct {
	RiskLevel   models.RiskLevel `json:"risk_level"`
	RiskScore   int              `json:"risk_score"`
	Reason      string           `json:"reason"`
	Reasons     []risk.Factor    `json:"reasons"`
	BannedUntil *time.Time       `json:"banned_until,omitempty"`
}

// LoginService drives the risk-scored login flow: credentials, ban check,
// scoring, then admission, OTP challenge or ban.
type LoginService struct {
	identity    CredentialVerifier
	history     RiskHistory
	ledger      ChallengeLedger
	engine      *risk.Engine
	sessions    SessionIssuer
	email       EmailService
	enricher    SignalEnricher
	config      LoginConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	locks    *keyedMutex
	now      func() time.Time
	dispatch func(func())
}

// NewLoginService creates a new LoginService. enricher may be nil.
func NewLoginService(
	identity CredentialVerifier,
	history RiskHistory,
	ledger ChallengeLedger,
	engine *risk.Engine,
	sessions SessionIssuer,
	email EmailService,
	enricher SignalEnricher,
	config LoginConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *LoginService {
	if config.BanDuration <= 0 {
		config.BanDuration = DefaultBanDuration
	}
	if config.MaxFailedOTP <= 0 {
		config.MaxFailedOTP = DefaultMaxFailedOTP
	}
	return &LoginService{
		identity:    identity,
		history:     history,
		ledger:      ledger,
		engine:      engine,
		sessions:    sessions,
		email:       email,
		enricher:    enricher,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		locks:       newKeyedMutex(),
		now:         time.Now,
		dispatch:    func(f func()) { go f() },
	}
}

// Login runs one primary-credential attempt through the risk policy.
func (s *LoginService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := s.identity.VerifyCredentials(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventLoginRejected,
				Email:         in.Email,
				IPAddress:     in.Signal.IP,
				UserAgent:     in.Signal.UserAgent,
				FailureReason: "invalid_credentials",
			})
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("credential verification failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	now := s.now().UTC()

	last, err := s.latest(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if last.BannedAt(now) {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginBanned,
			UserID:        user.ID,
			IPAddress:     in.Signal.IP,
			FailureReason: "account_banned",
		})
		return nil, &models.BannedError{Until: *last.BannedUntil}
	}

	signal := s.prepareSignal(in.Signal, now)
	assessment, err := s.score(ctx, user.ID, signal, last)
	if err != nil {
		return nil, err
	}

	firstLogin := last == nil || last.IsFirstLogin
	snap := newSnapshot(user.ID, signal, assessment, now)
	snap.IsFirstLogin = firstLogin
	if last != nil {
		snap.FailedOTPCount = last.FailedOTPCount
	}

	switch {
	case assessment.Level == models.RiskLevelHigh:
		return nil, s.ban(ctx, user, snap, assessment, now)
	case assessment.Level == models.RiskLevelMedium || firstLogin:
		return s.challenge(ctx, user, snap, assessment)
	default:
		return s.admit(ctx, user, snap, assessment)
	}
}

func (s *LoginService) admit(ctx context.Context, user *models.User, snap *models.RiskRecord, a risk.Assessment) (*LoginResult, error) {
	snap.FailedOTPCount = 0
	snap.BannedUntil = nil
	snap.IsFirstLogin = false

	if err := s.append(ctx, snap); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.sessions.GenerateSessionToken(user)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logDecision(ctx, pkglogger.EventLoginAdmitted, user.ID, snap, a)
	return &LoginResult{
		Status:    LoginStatusAdmitted,
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		Risk:      summarize(a),
	}, nil
}

func (s *LoginService) challenge(ctx context.Context, user *models.User, snap *models.RiskRecord, a risk.Assessment) (*LoginResult, error) {
	code, expiresAt, err := s.ledger.Issue(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to issue otp", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.append(ctx, snap); err != nil {
		return nil, err
	}

	s.sendOTP(ctx, user, code, expiresAt)

	s.logDecision(ctx, pkglogger.EventLoginChallenged, user.ID, snap, a)
	return &LoginResult{
		Status:             LoginStatusChallengeRequired,
		UserID:             user.ID,
		ChallengeExpiresAt: expiresAt,
		Risk:               summarize(a),
	}, nil
}

func (s *LoginService) ban(ctx context.Context, user *models.User, snap *models.RiskRecord, a risk.Assessment, now time.Time) error {
	until := now.Add(s.config.BanDuration)
	snap.BannedUntil = &until
	snap.RiskLevel = models.RiskLevelHigh

	if err := s.append(ctx, snap); err != nil {
		return err
	}

	// A pending code must not outlive the ban
	if err := s.ledger.Revoke(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke pending otp on ban", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.logDecision(ctx, pkglogger.EventLoginBanned, user.ID, snap, a)
	return &models.BannedError{Until: until}
}

// VerifyChallenge checks a submitted OTP. Every rejected code counts toward
// the account's failed-OTP escalation, whatever the ledger outcome.
func (s *LoginService) VerifyChallenge(ctx context.Context, in VerifyInput) (*LoginResult, error) {
	user, err := s.identity.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &models.OTPRejectedError{Outcome: models.OTPOutcomeNoRecord}
		}
		return nil, models.ErrInternalServer
	}
	if user.Disabled {
		return nil, &models.OTPRejectedError{Outcome: models.OTPOutcomeNoRecord}
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	now := s.now().UTC()

	last, err := s.latest(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if last.BannedAt(now) {
		return nil, &models.BannedError{Until: *last.BannedUntil}
	}

	verdict, err := s.ledger.Verify(ctx, user.ID, in.Code)
	if err != nil {
		s.logger.Error("failed to verify otp", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	signal := s.verifySignal(in.Signal, last, now)

	if verdict.Outcome == models.OTPOutcomeOK {
		return s.confirm(ctx, user, signal, now)
	}
	return nil, s.reject(ctx, user, signal, last, verdict, now)
}

// rejectSnapshot carries the last login context forward unchanged. A rejected
// code proves nothing about the caller, so only the failure counter moves.
func rejectSnapshot(accountID string, last *models.RiskRecord, now time.Time) *models.RiskRecord {
	if last == nil {
		return &models.RiskRecord{
			AccountID:    accountID,
			RiskScore:    0,
			RiskLevel:    models.RiskLevelLow,
			Reasons:      []string{},
			LastLoginAt:  now,
			IsFirstLogin: true,
		}
	}
	return &models.RiskRecord{
		AccountID:      accountID,
		IP:             last.IP,
		UserAgent:      last.UserAgent,
		DeviceID:       last.DeviceID,
		Location:       last.Location,
		RiskScore:      last.RiskScore,
		RiskLevel:      last.RiskLevel,
		Reasons:        last.Reasons,
		FailedOTPCount: last.FailedOTPCount,
		LastLoginAt:    last.LastLoginAt,
		IsFirstLogin:   last.IsFirstLogin,
	}
}

func (s *LoginService) confirm(ctx context.Context, user *models.User, signal models.LoginSignal, now time.Time) (*LoginResult, error) {
	snap := newSnapshot(user.ID, signal, risk.Assessment{Score: 0, Level: models.RiskLevelLow}, now)
	snap.Reason = OTPVerifiedReason
	snap.IsTrustedDevice = true
	snap.IsFirstLogin = false

	if err := s.append(ctx, snap); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.sessions.GenerateSessionToken(user)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPVerified,
		UserID:    user.ID,
		IPAddress: signal.IP,
		UserAgent: signal.UserAgent,
		Success:   true,
	})
	return &LoginResult{
		Status:    LoginStatusAdmitted,
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		Risk: RiskSummary{
			Score:   0,
			Level:   models.RiskLevelLow,
			Reason:  OTPVerifiedReason,
			Reasons: []string{},
		},
	}, nil
}

func (s *LoginService) reject(ctx context.Context, user *models.User, signal models.LoginSignal, last *models.RiskRecord, verdict models.OTPVerification, now time.Time) error {
	snap := rejectSnapshot(user.ID, last, now)
	snap.Reason = OTPFailedReason
	snap.FailedOTPCount++

	escalated := snap.FailedOTPCount >= s.config.MaxFailedOTP
	var until time.Time
	if escalated {
		until = now.Add(s.config.BanDuration)
		snap.BannedUntil = &until
		snap.RiskScore = risk.MaxScore
		snap.RiskLevel = models.RiskLevelHigh
		snap.Reason = OTPEscalatedReason
	}

	if err := s.append(ctx, snap); err != nil {
		return err
	}

	if escalated {
		if err := s.ledger.Revoke(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke pending otp on ban", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventOTPRejected,
		UserID:        user.ID,
		IPAddress:     signal.IP,
		UserAgent:     signal.UserAgent,
		FailureReason: string(verdict.Outcome),
		Metadata:      map[string]string{"escalated": strconv.FormatBool(escalated)},
	})

	if escalated {
		return &models.BannedError{Until: until, Outcome: verdict.Outcome}
	}
	return &models.OTPRejectedError{Outcome: verdict.Outcome, AttemptsLeft: verdict.AttemptsLeft}
}

// ResendChallenge issues a fresh code when a challenge is already pending and
// the account is not banned. Unknown accounts are silently ignored.
func (s *LoginService) ResendChallenge(ctx context.Context, email string) error {
	user, err := s.identity.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return models.ErrInternalServer
	}
	if user.Disabled {
		return nil
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	last, err := s.latest(ctx, user.ID)
	if err != nil {
		return err
	}
	if last.BannedAt(s.now()) {
		return nil
	}

	pending, err := s.ledger.Pending(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to look up pending otp", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !pending {
		return nil
	}

	code, expiresAt, err := s.ledger.Issue(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to reissue otp", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.sendOTP(ctx, user, code, expiresAt)
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPResent,
		UserID:    user.ID,
		Success:   true,
	})
	return nil
}

// Assess scores a signal without changing any state. Unknown emails are
// scored as accounts without history.
func (s *LoginService) Assess(ctx context.Context, email string, signal models.LoginSignal) (*RiskAssessmentResult, error) {
	now := s.now().UTC()

	var (
		accountID string
		last      *models.RiskRecord
	)
	user, err := s.identity.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		accountID = user.ID
		if last, err = s.latest(ctx, accountID); err != nil {
			return nil, err
		}
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, models.ErrInternalServer
	}

	if last.BannedAt(now) {
		until := *last.BannedUntil
		return &RiskAssessmentResult{
			RiskLevel:   models.RiskLevelHigh,
			RiskScore:   risk.MaxScore,
			Reason:      BannedReason,
			Reasons:     []risk.Factor{},
			BannedUntil: &until,
		}, nil
	}

	signal = s.prepareSignal(signal, now)

	var assessment risk.Assessment
	if accountID == "" {
		assessment = s.engine.Score(signal, nil, nil)
	} else if assessment, err = s.score(ctx, accountID, signal, last); err != nil {
		return nil, err
	}

	if accountID != "" {
		s.logDecision(ctx, pkglogger.EventRiskAssessed, accountID, newSnapshot(accountID, signal, assessment, now), assessment)
	}

	factors := assessment.Factors
	if factors == nil {
		factors = []risk.Factor{}
	}
	return &RiskAssessmentResult{
		RiskLevel: assessment.Level,
		RiskScore: assessment.Score,
		Reason:    assessment.Reason(),
		Reasons:   factors,
	}, nil
}

// latest returns the current snapshot, or nil for an account without history.
func (s *LoginService) latest(ctx context.Context, accountID string) (*models.RiskRecord, error) {
	last, err := s.history.FindLatest(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to load risk history", slog.String("user_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return last, nil
}

func (s *LoginService) score(ctx context.Context, accountID string, signal models.LoginSignal, last *models.RiskRecord) (risk.Assessment, error) {
	trusted, err := s.history.FindTrustedDevices(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to load trusted devices", slog.String("user_id", accountID), slog.Any("error", err))
		return risk.Assessment{}, models.ErrInternalServer
	}
	return s.engine.Score(signal, last, risk.NewDeviceSet(trusted...)), nil
}

func (s *LoginService) append(ctx context.Context, snap *models.RiskRecord) error {
	if _, err := s.history.Append(ctx, snap); err != nil {
		s.logger.Error("failed to append risk record", slog.String("user_id", snap.AccountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// prepareSignal fills missing fields from the enricher and pins the attempt to the server clock.
func (s *LoginService) prepareSignal(signal models.LoginSignal, now time.Time) models.LoginSignal {
	if s.enricher != nil {
		signal = s.enricher.Enrich(signal)
	}
	signal.Timestamp = now
	return signal
}

func (s *LoginService) verifySignal(submitted *models.LoginSignal, last *models.RiskRecord, now time.Time) models.LoginSignal {
	if submitted != nil {
		return s.prepareSignal(*submitted, now)
	}
	signal := models.LoginSignal{Timestamp: now}
	if last != nil {
		signal.IP = last.IP
		signal.UserAgent = last.UserAgent
		signal.DeviceID = last.DeviceID
		signal.Location = last.Location
	}
	return signal
}

// sendOTP hands the code to the mail transport without blocking the response.
func (s *LoginService) sendOTP(ctx context.Context, user *models.User, code string, expiresAt time.Time) {
	sendCtx := context.WithoutCancel(ctx)
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(sendCtx, emailDispatchTimeout)
		defer cancel()
		if err := s.email.SendOTPEmail(ctx, user.Email, code, expiresAt); err != nil {
			s.logger.Warn("otp email not delivered", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	})
}

func (s *LoginService) logDecision(ctx context.Context, event, accountID string, snap *models.RiskRecord, a risk.Assessment) {
	s.auditLogger.LogRiskDecision(ctx, pkglogger.RiskDecision{
		EventType: event,
		UserID:    accountID,
		IPAddress: snap.IP,
		DeviceID:  snap.DeviceID,
		Score:     snap.RiskScore,
		Level:     string(snap.RiskLevel),
		Reasons:   a.RuleIDs(),
	})
}

// newSnapshot builds the record for one attempt. Callers adjust the policy fields.
func newSnapshot(accountID string, signal models.LoginSignal, a risk.Assessment, at time.Time) *models.RiskRecord {
	return &models.RiskRecord{
		AccountID:       accountID,
		IP:              signal.IP,
		UserAgent:       signal.UserAgent,
		DeviceID:        signal.DeviceID,
		Location:        signal.Location,
		RiskScore:       a.Score,
		RiskLevel:       a.Level,
		Reason:          a.Reason(),
		Reasons:         a.RuleIDs(),
		LastLoginAt:     at,
		IsTrustedDevice: false,
	}
}

func summarize(a risk.Assessment) RiskSummary {
	return RiskSummary{
		Score:   a.Score,
		Level:   a.Level,
		Reason:  a.Reason(),
		Reasons: a.RuleIDs(),
	}
}
