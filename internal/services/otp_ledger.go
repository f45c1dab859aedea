package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/BradenHooton/riskauth/internal/repositories"
	pkgauth "github.com/BradenHooton/riskauth/pkg/auth"
)

const (
	DefaultOTPTTL         = 5 * time.Minute
	DefaultOTPMaxAttempts = 3
)

// OTPStore is the persistence behind the ledger. WithAccount must run fn
// atomically with respect to every other WithAccount call for the same account.
type OTPStore interface {
	WithAccount(ctx context.Context, accountID string, fn func(repositories.OTPTx) error) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OTPLedgerConfig configures code lifetime and the wrong-code budget per code.
type OTPLedgerConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// OTPLedger issues and verifies one-time passcodes. At most one code is live per account.
type OTPLedger struct {
	store    OTPStore
	config   OTPLedgerConfig
	locks    *keyedMutex
	logger   *slog.Logger
	now      func() time.Time
	generate func() (string, error)
}

// NewOTPLedger creates a new OTPLedger. Zero config values fall back to the defaults.
func NewOTPLedger(store OTPStore, config OTPLedgerConfig, logger *slog.Logger) *OTPLedger {
	if config.TTL <= 0 {
		config.TTL = DefaultOTPTTL
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultOTPMaxAttempts
	}
	return &OTPLedger{
		store:    store,
		config:   config,
		locks:    newKeyedMutex(),
		logger:   logger,
		now:      time.Now,
		generate: pkgauth.GenerateNumericCode,
	}
}

// Issue replaces any live code for the account with a fresh one and returns the raw code.
func (l *OTPLedger) Issue(ctx context.Context, accountID string) (string, time.Time, error) {
	code, err := l.generate()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate otp: %w", err)
	}
	salt, err := pkgauth.NewSalt()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate otp salt: %w", err)
	}

	unlock := l.locks.Lock(accountID)
	defer unlock()

	now := l.now().UTC()
	record := &models.OTPRecord{
		AccountID: accountID,
		CodeHash:  pkgauth.HashCode(code, salt),
		Salt:      salt,
		ExpiresAt: now.Add(l.config.TTL),
		Attempts:  0,
		CreatedAt: now,
	}

	err = l.store.WithAccount(ctx, accountID, func(tx repositories.OTPTx) error {
		if err := tx.DeleteAll(ctx); err != nil {
			return err
		}
		return tx.Create(ctx, record)
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue otp: %w", err)
	}

	return code, record.ExpiresAt, nil
}

// Verify checks a submitted code. Expiry is checked first, then the attempt
// budget, then the code itself.
func (l *OTPLedger) Verify(ctx context.Context, accountID, code string) (models.OTPVerification, error) {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	now := l.now()
	var result models.OTPVerification

	err := l.store.WithAccount(ctx, accountID, func(tx repositories.OTPTx) error {
		record, err := tx.Find(ctx)
		if errors.Is(err, models.ErrNotFound) {
			result = models.OTPVerification{Outcome: models.OTPOutcomeNoRecord}
			return nil
		}
		if err != nil {
			return err
		}

		if record.Expired(now) {
			result = models.OTPVerification{Outcome: models.OTPOutcomeExpired}
			return tx.DeleteAll(ctx)
		}

		if record.Attempts >= l.config.MaxAttempts {
			result = models.OTPVerification{Outcome: models.OTPOutcomeTooManyAttempts}
			return tx.DeleteAll(ctx)
		}

		if pkgauth.CompareCode(code, record.Salt, record.CodeHash) {
			result = models.OTPVerification{Outcome: models.OTPOutcomeOK}
			return tx.DeleteAll(ctx)
		}

		attempts := record.Attempts + 1
		if attempts >= l.config.MaxAttempts {
			result = models.OTPVerification{Outcome: models.OTPOutcomeTooManyAttempts}
			return tx.DeleteAll(ctx)
		}

		result = models.OTPVerification{
			Outcome:      models.OTPOutcomeMismatch,
			AttemptsLeft: l.config.MaxAttempts - attempts,
		}
		return tx.IncrementAttempts(ctx)
	})
	if err != nil {
		return models.OTPVerification{}, fmt.Errorf("failed to verify otp: %w", err)
	}

	return result, nil
}

// Pending reports whether a code exists for the account, expired or not.
func (l *OTPLedger) Pending(ctx context.Context, accountID string) (bool, error) {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	var pending bool
	err := l.store.WithAccount(ctx, accountID, func(tx repositories.OTPTx) error {
		_, err := tx.Find(ctx)
		switch {
		case err == nil:
			pending = true
			return nil
		case errors.Is(err, models.ErrNotFound):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, fmt.Errorf("failed to look up otp: %w", err)
	}
	return pending, nil
}

// Revoke purges any code for the account.
func (l *OTPLedger) Revoke(ctx context.Context, accountID string) error {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	err := l.store.WithAccount(ctx, accountID, func(tx repositories.OTPTx) error {
		return tx.DeleteAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to revoke otp: %w", err)
	}
	return nil
}

// PurgeExpired deletes codes that expired before now. Verification never depends on it.
func (l *OTPLedger) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := l.store.DeleteExpired(ctx, l.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Debug("purged expired otp records", slog.Int64("count", n))
	}
	return n, nil
}
