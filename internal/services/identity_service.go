package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/riskauth/internal/auth"
	"github.com/BradenHooton/riskauth/internal/models"
	pkgauth "github.com/BradenHooton/riskauth/pkg/auth"
	pkglogger "github.com/BradenHooton/riskauth/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash, tokenKey string) error
	Delete(ctx context.Context, id string) error
}

// PasswordSetTokens issues and validates password-set tokens.
type PasswordSetTokens interface {
	GeneratePasswordSetToken(user *models.User) (string, error)
	ValidateToken(tokenString, expectedType string) (*models.TokenClaims, error)
}

// IdentityService verifies primary credentials and manages accounts.
type IdentityService struct {
	repo        UserRepository
	tokens      PasswordSetTokens
	email       EmailService
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	setBaseURL  string

	dummyOnce sync.Once
	dummyHash string
}

// NewIdentityService creates a new IdentityService. setBaseURL is the page that
// receives password-set tokens as its "token" query parameter.
func NewIdentityService(
	repo UserRepository,
	tokens PasswordSetTokens,
	email EmailService,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	setBaseURL string,
) *IdentityService {
	return &IdentityService{
		repo:        repo,
		tokens:      tokens,
		email:       email,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		setBaseURL:  setBaseURL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// compareDummy burns a bcrypt comparison so unknown accounts cost the same as known ones.
func (s *IdentityService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := pkgauth.HashPassword("riskauth-timing-equalizer")
		if err != nil {
			s.logger.Error("failed to build dummy password hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = pkgauth.ComparePassword(s.dummyHash, password)
	}
}

// VerifyCredentials checks an email/password pair. Unknown accounts, accounts
// without a password, disabled accounts and wrong passwords all return
// ErrInvalidCredentials after the same padded delay.
func (s *IdentityService) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	start := time.Now()
	email = normalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.compareDummy(password)
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.PasswordHash == "" || user.Disabled {
		s.compareDummy(password)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	s.timing.WaitFrom(start, true)
	return user, nil
}

// GetUserByEmail looks up an account. Returns models.ErrNotFound when absent.
func (s *IdentityService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// ListUsers retrieves a list of users with pagination
func (s *IdentityService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return users, nil
}

// CreateUser creates an account without a password. The owner sets one through a password-set link.
func (s *IdentityService) CreateUser(ctx context.Context, email, displayName, role string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, models.ErrBadRequest
	}
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, models.ErrBadRequest
	}

	created, err := s.repo.Create(ctx, &models.User{
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return created, nil
}

// GeneratePasswordResetLink builds a password-set link bound to the user's current token key.
func (s *IdentityService) GeneratePasswordResetLink(ctx context.Context, email string) (string, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return s.passwordSetLink(user)
}

func (s *IdentityService) passwordSetLink(user *models.User) (string, error) {
	token, err := s.tokens.GeneratePasswordSetToken(user)
	if err != nil {
		s.logger.Error("failed to generate password set token", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	base, err := url.Parse(s.setBaseURL)
	if err != nil {
		s.logger.Error("invalid password set base url", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	q := base.Query()
	q.Set("token", token)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// ProvisionUser creates an account and emails its password-set link.
// Email delivery failures are logged and do not undo the account.
func (s *IdentityService) ProvisionUser(ctx context.Context, actorID, email, displayName, role string) (*models.User, error) {
	user, err := s.CreateUser(ctx, email, displayName, role)
	if err != nil {
		return nil, err
	}

	link, err := s.passwordSetLink(user)
	if err != nil {
		return nil, err
	}

	if err := s.email.SendPasswordSetEmail(ctx, user.Email, user.DisplayName, link); err != nil {
		s.logger.Warn("password set email not delivered", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventUserProvisioned, actorID, user.ID, map[string]string{"role": user.Role})
	return user, nil
}

// SetPassword consumes a password-set token. The token key is rotated so the
// same link cannot be used twice.
func (s *IdentityService) SetPassword(ctx context.Context, token, password string) error {
	claims, err := s.tokens.ValidateToken(token, models.TokenTypePasswordSet)
	if err != nil {
		return models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get user", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Disabled || auth.KeyHash(user.TokenKey) != claims.KeyHash {
		s.auditLogger.LogPasswordSet(ctx, user.ID, "", false)
		return models.ErrUnauthorized
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	tokenKey, err := pkgauth.GenerateTokenKey()
	if err != nil {
		return fmt.Errorf("failed to generate token key: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, hash, tokenKey); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogPasswordSet(ctx, user.ID, "", true)
	return nil
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (s *IdentityService) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return models.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventUserDeleted, actorID, id, nil)
	return nil
}

// RejectUser declines a provisioned account that has not been activated yet:
// the account is removed and the requester is told why.
func (s *IdentityService) RejectUser(ctx context.Context, actorID, id, reason string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.PasswordHash != "" {
		return models.ErrConflict
	}

	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to delete rejected user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendRejectionEmail(ctx, user.Email, reason); err != nil {
		s.logger.Warn("rejection email not delivered", slog.String("user_id", id), slog.Any("error", err))
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventUserRejected, actorID, id, nil)
	return nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (s *IdentityService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	user, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("bootstrap admin created", slog.String("user_id", user.ID))
	return nil
}
