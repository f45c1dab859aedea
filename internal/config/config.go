package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	OTPStorePostgres = "postgres"
	OTPStoreRedis    = "redis"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Risk     RiskConfig
	OTP      OTPConfig
	Email    EmailConfig
	Redis    RedisConfig
	GeoIP    GeoIPConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret           string
	SessionTokenExpiry  time.Duration
	PasswordSetExpiry   time.Duration
	PasswordSetBaseURL  string
	FailureDelayBase    time.Duration
	FailureDelayJitter  time.Duration
	LoginRatePerMinute  int
	VerifyRatePerMinute int
}

// RiskConfig holds the policy applied to a scored attempt.
type RiskConfig struct {
	BanDuration  time.Duration
	MaxFailedOTP int
}

type OTPConfig struct {
	Store           string
	TTL             time.Duration
	MaxAttempts     int
	CleanupInterval time.Duration
}

type EmailConfig struct {
	Provider    string // "ses" or "log"
	AWSRegion   string
	FromAddress string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GeoIPConfig struct {
	CityDBPath string
	ASNDBPath  string
}

type AdminConfig struct {
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "riskauth"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			SessionTokenExpiry:  getEnvAsDuration("SESSION_TOKEN_EXPIRY", 1*time.Hour),
			PasswordSetExpiry:   getEnvAsDuration("PASSWORD_SET_TOKEN_EXPIRY", 24*time.Hour),
			PasswordSetBaseURL:  getEnv("PASSWORD_SET_BASE_URL", "http://localhost:5173/set-password"),
			FailureDelayBase:    getEnvAsDuration("AUTH_FAILURE_DELAY", 300*time.Millisecond),
			FailureDelayJitter:  getEnvAsDuration("AUTH_FAILURE_JITTER", 200*time.Millisecond),
			LoginRatePerMinute:  getEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
			VerifyRatePerMinute: getEnvAsInt("VERIFY_RATE_PER_MINUTE", 20),
		},
		Risk: RiskConfig{
			BanDuration:  getEnvAsDuration("RISK_BAN_DURATION", 15*time.Minute),
			MaxFailedOTP: getEnvAsInt("RISK_MAX_FAILED_OTP", 3),
		},
		OTP: OTPConfig{
			Store:           strings.ToLower(getEnv("OTP_STORE", OTPStorePostgres)),
			TTL:             getEnvAsDuration("OTP_TTL", 5*time.Minute),
			MaxAttempts:     getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
			CleanupInterval: getEnvAsDuration("OTP_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Email: EmailConfig{
			Provider:    strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@localhost"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		GeoIP: GeoIPConfig{
			CityDBPath: getEnv("GEOIP_CITY_DB", ""),
			ASNDBPath:  getEnv("GEOIP_ASN_DB", ""),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.OTP.Store {
	case OTPStorePostgres, OTPStoreRedis:
	default:
		return fmt.Errorf("OTP_STORE must be %q or %q (got %q)", OTPStorePostgres, OTPStoreRedis, c.OTP.Store)
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.Risk.MaxFailedOTP < 1 {
		return fmt.Errorf("RISK_MAX_FAILED_OTP must be positive")
	}
	switch c.Email.Provider {
	case "ses", "log":
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be \"ses\" or \"log\" (got %q)", c.Email.Provider)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(value string) []string {
	if value == "" {
		return []string{}
	}
	items := strings.Split(value, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
