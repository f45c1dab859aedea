package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/riskauth/internal/auth"
	"github.com/BradenHooton/riskauth/internal/background"
	"github.com/BradenHooton/riskauth/internal/config"
	"github.com/BradenHooton/riskauth/internal/database"
	"github.com/BradenHooton/riskauth/internal/geoip"
	"github.com/BradenHooton/riskauth/internal/handlers"
	middlewareCustom "github.com/BradenHooton/riskauth/internal/middleware"
	"github.com/BradenHooton/riskauth/internal/repositories"
	"github.com/BradenHooton/riskauth/internal/risk"
	"github.com/BradenHooton/riskauth/internal/routes"
	"github.com/BradenHooton/riskauth/internal/services"
	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
	pkglogger "github.com/BradenHooton/riskauth/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("otp_store", cfg.OTP.Store),
		slog.String("email_provider", cfg.Email.Provider),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
		err := database.Migrate(migrateCtx, cfg.Database.DSN(), logger)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	riskRepo := repositories.NewRiskRecordRepository(db)

	otpStore, closeStore, err := newOTPStore(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	geo, err := geoip.NewService(cfg.GeoIP.CityDBPath, cfg.GeoIP.ASNDBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open geoip databases: %w", err)
	}
	defer geo.Close()

	var enricher services.SignalEnricher
	if geo.Enabled() {
		enricher = geo
	}

	emailService, err := newEmailService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry, cfg.Auth.PasswordSetExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.FailureDelayBase,
		RandomDelay: cfg.Auth.FailureDelayJitter,
	})
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	identityService := services.NewIdentityService(
		userRepo,
		tokenManager,
		emailService,
		timingDelay,
		logger,
		auditLogger,
		cfg.Auth.PasswordSetBaseURL,
	)
	ledger := services.NewOTPLedger(otpStore, services.OTPLedgerConfig{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
	}, logger)
	loginService := services.NewLoginService(
		identityService,
		riskRepo,
		ledger,
		risk.NewEngine(),
		tokenManager,
		emailService,
		enricher,
		services.LoginConfig{
			BanDuration:  cfg.Risk.BanDuration,
			MaxFailedOTP: cfg.Risk.MaxFailedOTP,
		},
		logger,
		auditLogger,
	)
	analyticsService := services.NewAnalyticsService(riskRepo, logger)

	// Bootstrap first admin user if configured
	adminCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := identityService.EnsureAdmin(adminCtx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(loginService, identityService, ipConfig)
	riskHandler := handlers.NewRiskHandler(loginService, ipConfig)
	adminHandler := handlers.NewAdminHandler(identityService, analyticsService)
	healthHandler := handlers.NewHealthHandler(db)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, riskHandler, adminHandler, healthHandler, tokenManager, userRepo, ipConfig, routes.Limits{
		Login:  middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.LoginRatePerMinute},
		Verify: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.VerifyRatePerMinute},
	})

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(ledger, logger, cfg.OTP.CleanupInterval)
	go cleanupManager.Start(ctx)
	defer cleanupManager.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// newOTPStore picks the OTP backend. The returned func releases it.
func newOTPStore(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (services.OTPStore, func(), error) {
	if cfg.OTP.Store != config.OTPStoreRedis {
		return repositories.NewOTPRepository(db), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis otp store connected", slog.String("addr", cfg.Redis.Addr))
	return repositories.NewRedisOTPRepository(client), func() { client.Close() }, nil
}

func newEmailService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.EmailService, error) {
	if cfg.Email.Provider != "ses" {
		return services.NewLogEmailService(logger, cfg.Server.Env), nil
	}

	svc, err := services.NewAWSSESEmailService(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}
	return svc, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
