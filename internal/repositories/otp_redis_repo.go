package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	otpKeyPrefix       = "otp:"
	otpMaxTxRetries    = 5
	otpExpiredKeyGrace = time.Minute
)

// ErrOTPContention is returned when an optimistic transaction kept losing to concurrent writers.
var ErrOTPContention = errors.New("otp record contention")

// RedisOTPRepository keeps one hash per account. WithAccount watches the key, buffers the
// callback's writes and applies them in a MULTI/EXEC block, retrying when the key changed.
// Keys outlive their expiry by a short grace period so verification can still report "expired".
type RedisOTPRepository struct {
	client *redis.Client
}

func NewRedisOTPRepository(client *redis.Client) *RedisOTPRepository {
	return &RedisOTPRepository{client: client}
}

func (r *RedisOTPRepository) key(accountID string) string {
	return otpKeyPrefix + accountID
}

func (r *RedisOTPRepository) WithAccount(ctx context.Context, accountID string, fn func(OTPTx) error) error {
	key := r.key(accountID)

	for i := 0; i < otpMaxTxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			rtx := &redisOTPTx{tx: tx, key: key, accountID: accountID}
			if err := fn(rtx); err != nil {
				return err
			}
			if len(rtx.writes) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, write := range rtx.writes {
					write(pipe)
				}
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrOTPContention
}

// DeleteExpired is a no-op: Redis evicts keys through their TTL.
func (r *RedisOTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type redisOTPTx struct {
	tx        *redis.Tx
	key       string
	accountID string
	writes    []func(redis.Pipeliner)
}

func (t *redisOTPTx) Find(ctx context.Context) (*models.OTPRecord, error) {
	fields, err := t.tx.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read otp record: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}

	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt otp record expires_at: %w", err)
	}
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("corrupt otp record attempts: %w", err)
	}

	return &models.OTPRecord{
		AccountID: t.accountID,
		CodeHash:  fields["code_hash"],
		Salt:      fields["salt"],
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		Attempts:  attempts,
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}, nil
}

func (t *redisOTPTx) Create(ctx context.Context, rec *models.OTPRecord) error {
	fields := map[string]interface{}{
		"code_hash":  rec.CodeHash,
		"salt":       rec.Salt,
		"expires_at": rec.ExpiresAt.UnixMilli(),
		"attempts":   rec.Attempts,
		"created_at": rec.CreatedAt.UnixMilli(),
	}
	expireAt := rec.ExpiresAt.Add(otpExpiredKeyGrace)

	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, t.key, fields)
		pipe.PExpireAt(ctx, t.key, expireAt)
	})
	return nil
}

func (t *redisOTPTx) IncrementAttempts(ctx context.Context) error {
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.HIncrBy(ctx, t.key, "attempts", 1)
	})
	return nil
}

func (t *redisOTPTx) DeleteAll(ctx context.Context) error {
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, t.key)
	})
	return nil
}
