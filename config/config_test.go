package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("PLATFORM_FEE_RATE", "")
	t.Setenv("NATS_URL", "")

	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.PlatformFeeRate.Equal(decimal.RequireFromString("0.05")))
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxFileSize)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("PORT", "9000")
	t.Setenv("PLATFORM_FEE_RATE", "0.1")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.PlatformFeeRate.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 100, cfg.RateLimitRequests)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:       "development",
			DatabaseURL:       ":memory:",
			IdentityJWTSecret: "secret",
			PlatformFeeRate:   decimal.RequireFromString("0.05"),
		}
	}

	require.NoError(t, base().Validate())

	t.Run("unknown environment", func(t *testing.T) {
		cfg := base()
		cfg.Environment = "staging"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing token key", func(t *testing.T) {
		cfg := base()
		cfg.IdentityJWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("production requires public key and webhook secret", func(t *testing.T) {
		cfg := base()
		cfg.Environment = "production"
		assert.Error(t, cfg.Validate())
		cfg.IdentityJWTPublicKey = "pem"
		assert.Error(t, cfg.Validate())
		cfg.IdentityWebhookSecret = "whsec_abc"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("fee rate bounds", func(t *testing.T) {
		cfg := base()
		cfg.PlatformFeeRate = decimal.NewFromInt(1)
		assert.Error(t, cfg.Validate())
		cfg.PlatformFeeRate = decimal.RequireFromString("-0.01")
		assert.Error(t, cfg.Validate())
	})

	t.Run("minio requires credentials", func(t *testing.T) {
		cfg := base()
		cfg.MinioEndpoint = "localhost:9000"
		assert.Error(t, cfg.Validate())
	})
}

func TestCloneIsDeep(t *testing.T) {
	cfg := &Config{AllowedOrigins: []string{"https://a.example"}}
	clone := cfg.Clone()
	clone.AllowedOrigins[0] = "changed"
	assert.Equal(t, "https://a.example", cfg.AllowedOrigins[0])
}
