// Package pgtest starts a throwaway PostgreSQL container with the schema applied,
// for tests that need the real SQL behaviour of the repositories.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/riskauth/internal/database"
)

// TestDB manages a PostgreSQL testcontainer and the pool connected to it
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

var (
	shared    *TestDB
	sharedErr error
	once      sync.Once
)

// New returns the package-wide database, starting it on first use. The test is
// skipped in -short mode or when no container runtime is reachable. Tables are
// truncated before the test runs.
func New(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		shared, sharedErr = Setup(ctx)
	})
	if sharedErr != nil {
		t.Skipf("postgres container unavailable: %v", sharedErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shared.Truncate(ctx); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
	return shared
}

// Setup creates a PostgreSQL testcontainer, runs migrations and returns the TestDB.
// The container lives until the test binary exits.
func Setup(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("riskauth"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	err = database.MigrateDB(ctx, sqlDB, logger)
	sqlDB.Close()
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         database.NewFromPool(pool, logger),
	}, nil
}

// Truncate empties every application table
func (db *TestDB) Truncate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `TRUNCATE TABLE otp_records, risk_records, users`)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}
