package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/riskauth/internal/database"
	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const riskRecordColumns = `
	id, seq, account_id, ip, user_agent, device_id,
	country, region, city, latitude, longitude,
	risk_score, risk_level, reason, reasons,
	failed_otp_count, banned_until, last_login_at,
	is_trusted_device, is_first_login, created_at`

// RiskRecordRepository stores risk snapshots as an append-only log.
// The current state of an account is the row with the highest seq.
type RiskRecordRepository struct {
	pool *pgxpool.Pool
}

func NewRiskRecordRepository(db *database.DB) *RiskRecordRepository {
	return &RiskRecordRepository{pool: db.Pool}
}

func scanRiskRecordRow(scanner rowScanner) (*models.RiskRecord, error) {
	var rec models.RiskRecord
	var level string

	err := scanner.Scan(
		&rec.ID, &rec.Seq, &rec.AccountID, &rec.IP, &rec.UserAgent, &rec.DeviceID,
		&rec.Location.Country, &rec.Location.Region, &rec.Location.City,
		&rec.Location.Latitude, &rec.Location.Longitude,
		&rec.RiskScore, &level, &rec.Reason, &rec.Reasons,
		&rec.FailedOTPCount, &rec.BannedUntil, &rec.LastLoginAt,
		&rec.IsTrustedDevice, &rec.IsFirstLogin, &rec.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	rec.RiskLevel = models.RiskLevel(level)
	return &rec, nil
}

// FindLatest returns the most recently appended snapshot for the account, or models.ErrNotFound.
func (r *RiskRecordRepository) FindLatest(ctx context.Context, accountID string) (*models.RiskRecord, error) {
	query := `SELECT ` + riskRecordColumns + `
		FROM risk_records
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT 1`

	return scanRiskRecordRow(r.pool.QueryRow(ctx, query, accountID))
}

// Append writes a new snapshot in a single statement and returns it with its id, seq and created_at.
func (r *RiskRecordRepository) Append(ctx context.Context, rec *models.RiskRecord) (*models.RiskRecord, error) {
	reasons := rec.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	query := `
		INSERT INTO risk_records (
			id, account_id, ip, user_agent, device_id,
			country, region, city, latitude, longitude,
			risk_score, risk_level, reason, reasons,
			failed_otp_count, banned_until, last_login_at,
			is_trusted_device, is_first_login, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING ` + riskRecordColumns

	saved, err := scanRiskRecordRow(r.pool.QueryRow(ctx, query,
		uuid.New().String(), rec.AccountID, rec.IP, rec.UserAgent, rec.DeviceID,
		rec.Location.Country, rec.Location.Region, rec.Location.City,
		rec.Location.Latitude, rec.Location.Longitude,
		rec.RiskScore, string(rec.RiskLevel), rec.Reason, reasons,
		rec.FailedOTPCount, rec.BannedUntil, rec.LastLoginAt,
		rec.IsTrustedDevice, rec.IsFirstLogin, time.Now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append risk record: %w", err)
	}

	return saved, nil
}

// FindTrustedDevices returns the distinct device ids confirmed by a passed challenge.
func (r *RiskRecordRepository) FindTrustedDevices(ctx context.Context, accountID string) ([]string, error) {
	query := `
		SELECT DISTINCT device_id
		FROM risk_records
		WHERE account_id = $1 AND is_trusted_device AND device_id <> ''`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trusted devices: %w", err)
	}
	defer rows.Close()

	devices := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan trusted device: %w", err)
		}
		devices = append(devices, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return devices, nil
}

// CountByRiskLevel returns the number of snapshots per risk level, most frequent first.
func (r *RiskRecordRepository) CountByRiskLevel(ctx context.Context) ([]models.RiskLevelCount, error) {
	query := `
		SELECT risk_level, COUNT(*)
		FROM risk_records
		GROUP BY risk_level
		ORDER BY COUNT(*) DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count risk levels: %w", err)
	}
	defer rows.Close()

	counts := make([]models.RiskLevelCount, 0, 3)
	for rows.Next() {
		var c models.RiskLevelCount
		var level string
		if err := rows.Scan(&level, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan risk level count: %w", err)
		}
		c.RiskLevel = models.RiskLevel(level)
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// CountDailySince returns the number of snapshots per UTC day from since onwards, oldest day first.
func (r *RiskRecordRepository) CountDailySince(ctx context.Context, since time.Time) ([]models.DailyLoginCount, error) {
	query := `
		SELECT to_char(date_trunc('day', created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day, COUNT(*)
		FROM risk_records
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily logins: %w", err)
	}
	defer rows.Close()

	counts := make([]models.DailyLoginCount, 0)
	for rows.Next() {
		var c models.DailyLoginCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
