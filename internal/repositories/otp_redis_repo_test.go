package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepo(t *testing.T) (*RedisOTPRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisOTPRepository(client), mr
}

func sampleOTPRecord(now time.Time) *models.OTPRecord {
	return &models.OTPRecord{
		AccountID: "alice@example.com",
		CodeHash:  "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		Salt:      "c2FsdA",
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}
}

func TestRedisOTPRepository_CreateAndFind(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		return tx.Create(ctx, sampleOTPRecord(now))
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists("otp:alice@example.com"))
	assert.Greater(t, mr.TTL("otp:alice@example.com"), 5*time.Minute)

	var found *models.OTPRecord
	err = repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		var err error
		found, err = tx.Find(ctx)
		return err
	})
	require.NoError(t, err)

	want := sampleOTPRecord(now)
	assert.Equal(t, want.CodeHash, found.CodeHash)
	assert.Equal(t, want.Salt, found.Salt)
	assert.True(t, want.ExpiresAt.Equal(found.ExpiresAt))
	assert.Equal(t, 0, found.Attempts)
}

func TestRedisOTPRepository_FindMissing(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	err := repo.WithAccount(ctx, "nobody@example.com", func(tx OTPTx) error {
		_, err := tx.Find(ctx)
		return err
	})

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisOTPRepository_IncrementAndDelete(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		return tx.Create(ctx, sampleOTPRecord(now))
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
			return tx.IncrementAttempts(ctx)
		}))
	}
	assert.Equal(t, "2", mr.HGet("otp:alice@example.com", "attempts"))

	require.NoError(t, repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		return tx.DeleteAll(ctx)
	}))
	assert.False(t, mr.Exists("otp:alice@example.com"))
}

func TestRedisOTPRepository_ReplaceIsAtomic(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		return tx.Create(ctx, sampleOTPRecord(now))
	}))
	require.NoError(t, repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		return tx.IncrementAttempts(ctx)
	}))

	replacement := sampleOTPRecord(now)
	replacement.CodeHash = "replacement"
	require.NoError(t, repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		if err := tx.DeleteAll(ctx); err != nil {
			return err
		}
		return tx.Create(ctx, replacement)
	}))

	assert.Equal(t, "replacement", mr.HGet("otp:alice@example.com", "code_hash"))
	assert.Equal(t, "0", mr.HGet("otp:alice@example.com", "attempts"))
}

func TestRedisOTPRepository_CallbackErrorDiscardsWrites(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		if err := tx.Create(ctx, sampleOTPRecord(time.Now())); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("otp:alice@example.com"))
}

func TestRedisOTPRepository_KeyExpiresAfterGrace(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.WithAccount(ctx, "alice@example.com", func(tx OTPTx) error {
		return tx.Create(ctx, sampleOTPRecord(time.Now()))
	}))

	mr.FastForward(7 * time.Minute)

	assert.False(t, mr.Exists("otp:alice@example.com"))
}

func TestRedisOTPRepository_DeleteExpiredIsNoop(t *testing.T) {
	repo, _ := newTestRedisRepo(t)

	n, err := repo.DeleteExpired(context.Background(), time.Now())

	assert.NoError(t, err)
	assert.Zero(t, n)
}
