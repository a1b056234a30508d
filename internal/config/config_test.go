package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret = "0123456789abcdef0123456789abcdef"
	testSealKey   = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "JWT_SECRET", testJWTSecret)
	setEnv(t, "VOTE_SEAL_KEY", testSealKey)
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultOTPLength, cfg.OTPLength)
	assert.Equal(t, DefaultOTPTTL, cfg.OTPTTL)
	assert.Equal(t, DefaultLockoutThreshold, cfg.LockoutThreshold)
	assert.Equal(t, DefaultRiskHighThreshold, cfg.RiskHighThreshold)
	assert.Equal(t, 0, cfg.OTPMaxAttempts)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	setEnv(t, "JWT_SECRET", "")
	setEnv(t, "VOTE_SEAL_KEY", testSealKey)

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestLoad_InvalidSealKey(t *testing.T) {
	setEnv(t, "JWT_SECRET", testJWTSecret)
	setEnv(t, "VOTE_SEAL_KEY", "nothex")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		JWTSecret:         testJWTSecret,
		VoteSealKey:       testSealKey,
		OTPLength:         4,
		RiskLowThreshold:  0.3,
		RiskHighThreshold: 0.6,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.JWTSecret = "" },
			wantErr: "JWT_SECRET is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.JWTSecret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "missing seal key",
			mutate:  func(c *Config) { c.VoteSealKey = "" },
			wantErr: "VOTE_SEAL_KEY is required",
		},
		{
			name:    "seal key wrong length",
			mutate:  func(c *Config) { c.VoteSealKey = "abcd" },
			wantErr: "64 hex characters",
		},
		{
			name:    "otp length out of range",
			mutate:  func(c *Config) { c.OTPLength = 2 },
			wantErr: "OTP_LENGTH",
		},
		{
			name:    "inverted risk thresholds",
			mutate:  func(c *Config) { c.RiskLowThreshold = 0.7 },
			wantErr: "risk thresholds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_SealKey(t *testing.T) {
	cfg := &Config{VoteSealKey: testSealKey}
	assert.Len(t, cfg.SealKey(), 32)
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvBool(t *testing.T) {
	setEnv(t, "TEST_BOOL", "true")
	setEnv(t, "TEST_BOOL_BAD", "yep")

	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.False(t, getEnvBool("TEST_BOOL_BAD", false)) // Falls back on parse error
	assert.True(t, getEnvBool("NONEXISTENT_VAR", true))
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "45s")
	setEnv(t, "TEST_DUR_BAD", "soon")

	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DUR_BAD", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NONEXISTENT_VAR", time.Minute))
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "0.25")

	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 0.5))
	assert.Equal(t, 0.5, getEnvFloat("NONEXISTENT_VAR", 0.5))
}
