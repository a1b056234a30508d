// Package config handles application configuration from environment variables
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Sessions
	JWTSecret  string
	SessionTTL time.Duration

	// One-time passcodes
	OTPLength         int
	OTPTTL            time.Duration
	OTPSupersedeGrace time.Duration // how long a superseded code stays valid
	OTPMaxAttempts    int           // 0 = unlimited

	// Account lockout
	LockoutThreshold int
	LockoutDuration  time.Duration

	// Outbound email (optional, falls back to console delivery)
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Fraud engine
	ModelPath           string // classifier artifact JSON (optional)
	ModelReloadInterval time.Duration
	RiskLowThreshold    float64
	RiskHighThreshold   float64
	FirstVoteCap        float64

	// Ballot sealing
	VoteSealKey string // 64 hex chars (32 bytes) for AES-256-GCM; required

	// Anomaly scanner
	ScanInterval      time.Duration
	ScanMinEntries    int
	ScanContamination float64

	// Eligibility
	RequireIdentity bool // reject votes from accounts without a passed identity check

	// Security
	AdminSecret  string // Admin API secret
	RateLimitRPS int

	// Observability
	OTELEndpoint string
}

// Defaults
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultSessionTTL        = 24 * time.Hour
	DefaultOTPLength         = 4
	DefaultOTPTTL            = 10 * time.Minute
	DefaultOTPSupersedeGrace = 2 * time.Minute
	DefaultLockoutThreshold  = 5
	DefaultLockoutDuration   = 30 * time.Minute
	DefaultRiskLowThreshold  = 0.3
	DefaultRiskHighThreshold = 0.6
	DefaultFirstVoteCap      = 0.20
	DefaultScanInterval      = 15 * time.Minute
	DefaultScanMinEntries    = 10
	DefaultScanContamination = 0.05
	DefaultRateLimit         = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		JWTSecret:           os.Getenv("JWT_SECRET"),   // Required, no default
		SessionTTL:          getEnvDuration("SESSION_TTL", DefaultSessionTTL),
		OTPLength:           int(getEnvInt64("OTP_LENGTH", DefaultOTPLength)),
		OTPTTL:              getEnvDuration("OTP_TTL", DefaultOTPTTL),
		OTPSupersedeGrace:   getEnvDuration("OTP_SUPERSEDE_GRACE", DefaultOTPSupersedeGrace),
		OTPMaxAttempts:      int(getEnvInt64("OTP_MAX_ATTEMPTS", 0)),
		LockoutThreshold:    int(getEnvInt64("LOCKOUT_THRESHOLD", DefaultLockoutThreshold)),
		LockoutDuration:     getEnvDuration("LOCKOUT_DURATION", DefaultLockoutDuration),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            int(getEnvInt64("SMTP_PORT", 587)),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPass:            os.Getenv("SMTP_PASS"),
		SMTPFrom:            getEnv("SMTP_FROM", "no-reply@votegate.local"),
		ModelPath:           os.Getenv("MODEL_PATH"),
		ModelReloadInterval: getEnvDuration("MODEL_RELOAD_INTERVAL", 0),
		RiskLowThreshold:    getEnvFloat("RISK_LOW_THRESHOLD", DefaultRiskLowThreshold),
		RiskHighThreshold:   getEnvFloat("RISK_HIGH_THRESHOLD", DefaultRiskHighThreshold),
		FirstVoteCap:        getEnvFloat("FIRST_VOTE_CAP", DefaultFirstVoteCap),
		VoteSealKey:         os.Getenv("VOTE_SEAL_KEY"), // Required, no default
		ScanInterval:        getEnvDuration("SCAN_INTERVAL", DefaultScanInterval),
		ScanMinEntries:      int(getEnvInt64("SCAN_MIN_ENTRIES", DefaultScanMinEntries)),
		ScanContamination:   getEnvFloat("SCAN_CONTAMINATION", DefaultScanContamination),
		RequireIdentity:     getEnvBool("REQUIRE_IDENTITY", false),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTELEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if c.VoteSealKey == "" {
		return fmt.Errorf("VOTE_SEAL_KEY is required")
	}
	key, err := hex.DecodeString(c.VoteSealKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("VOTE_SEAL_KEY must be 64 hex characters (32 bytes)")
	}

	if c.OTPLength < 4 || c.OTPLength > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	}

	if c.RiskLowThreshold <= 0 || c.RiskHighThreshold <= c.RiskLowThreshold || c.RiskHighThreshold > 1 {
		return fmt.Errorf("risk thresholds must satisfy 0 < low < high <= 1")
	}

	return nil
}

// SealKey returns the decoded ballot sealing key.
// Validate must have been called first.
func (c *Config) SealKey() []byte {
	key, _ := hex.DecodeString(c.VoteSealKey)
	return key
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPConfigured reports whether outbound email is set up.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
