package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/riskauth/internal/database"
	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OTPTx exposes the account-scoped OTP persistence operations. An OTPTx is only valid
// inside the callback passed to WithAccount and is bound to that callback's account.
type OTPTx interface {
	Find(ctx context.Context) (*models.OTPRecord, error)
	Create(ctx context.Context, record *models.OTPRecord) error
	IncrementAttempts(ctx context.Context) error
	DeleteAll(ctx context.Context) error
}

// OTPRepository keeps OTP records in Postgres. Every WithAccount call runs in a transaction
// holding a per-account advisory lock, so purge-then-create and read-then-update sequences
// are atomic with respect to other callers for the same account.
type OTPRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{pool: db.Pool}
}

func (r *OTPRepository) WithAccount(ctx context.Context, accountID string, fn func(OTPTx) error) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "otp:"+accountID); err != nil {
			return fmt.Errorf("failed to lock otp records: %w", err)
		}
		return fn(&pgOTPTx{tx: tx, accountID: accountID})
	})
}

// DeleteExpired removes records whose expiry is before the given time.
func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM otp_records WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp records: %w", err)
	}
	return result.RowsAffected(), nil
}

type pgOTPTx struct {
	tx        pgx.Tx
	accountID string
}

func (t *pgOTPTx) Find(ctx context.Context) (*models.OTPRecord, error) {
	query := `
		SELECT account_id, code_hash, salt, expires_at, attempts, created_at
		FROM otp_records WHERE account_id = $1`

	var rec models.OTPRecord
	err := t.tx.QueryRow(ctx, query, t.accountID).Scan(
		&rec.AccountID, &rec.CodeHash, &rec.Salt, &rec.ExpiresAt, &rec.Attempts, &rec.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

func (t *pgOTPTx) Create(ctx context.Context, rec *models.OTPRecord) error {
	query := `
		INSERT INTO otp_records (account_id, code_hash, salt, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := t.tx.Exec(ctx, query, t.accountID, rec.CodeHash, rec.Salt, rec.ExpiresAt, rec.Attempts, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create otp record: %w", database.MapPostgresError(err))
	}
	return nil
}

func (t *pgOTPTx) IncrementAttempts(ctx context.Context) error {
	result, err := t.tx.Exec(ctx, `UPDATE otp_records SET attempts = attempts + 1 WHERE account_id = $1`, t.accountID)
	if err != nil {
		return fmt.Errorf("failed to increment otp attempts: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *pgOTPTx) DeleteAll(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM otp_records WHERE account_id = $1`, t.accountID); err != nil {
		return fmt.Errorf("failed to delete otp records: %w", err)
	}
	return nil
}
