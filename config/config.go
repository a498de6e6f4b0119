package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Environment string
	Port        string
	DatabaseURL string

	// Identity provider configuration
	IdentityJWTSecret     string
	IdentityJWTPublicKey  string
	IdentityJWTIssuer     string
	IdentityWebhookSecret string
	WebhookTolerance      time.Duration

	// Marketplace configuration
	PlatformFeeRate decimal.Decimal

	// NATS configuration. Empty URL disables event publishing.
	NATSURL           string
	NATSSubjectPrefix string

	// Object storage configuration. Empty endpoint disables media upload.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MaxFileSize    int64

	// Rate limiting configuration
	RateLimitRequests int
	RateLimitWindow   int

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogFile   string

	// CORS configuration
	AllowedOrigins  []string
	AllowAllOrigins bool

	EnableMetrics bool
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "eventhub.db"),

		IdentityJWTSecret:     getEnv("IDENTITY_JWT_SECRET", ""),
		IdentityJWTPublicKey:  getEnv("IDENTITY_JWT_PUBLIC_KEY", ""),
		IdentityJWTIssuer:     getEnv("IDENTITY_JWT_ISSUER", ""),
		IdentityWebhookSecret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
		WebhookTolerance:      time.Duration(getEnvAsInt("IDENTITY_WEBHOOK_TOLERANCE", 300)) * time.Second,

		PlatformFeeRate: getEnvAsDecimal("PLATFORM_FEE_RATE", decimal.RequireFromString("0.05")),

		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "eventhub"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "listing-media"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		MaxFileSize:    getEnvAsInt64("MAX_FILE_SIZE", 5*1024*1024), // 5MB

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvAsInt("RATE_LIMIT_WINDOW", 60),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogFile:   getEnv("LOG_FILE", "stdout"),

		AllowedOrigins:  getEnvAsStringSlice("ALLOWED_ORIGINS", []string{}),
		AllowAllOrigins: getEnvAsBool("ALLOW_ALL_ORIGINS", true), // Default to true for development

		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.IdentityJWTSecret == "" && c.IdentityJWTPublicKey == "" {
		return fmt.Errorf("identity JWT secret or public key is required")
	}
	if c.Environment == "production" {
		if c.IdentityJWTPublicKey == "" {
			return fmt.Errorf("identity JWT public key is required in production")
		}
		if c.IdentityWebhookSecret == "" {
			return fmt.Errorf("identity webhook secret is required in production")
		}
	}

	if c.PlatformFeeRate.IsNegative() || c.PlatformFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("platform fee rate must be in [0, 1): %s", c.PlatformFeeRate)
	}
	if c.MinioEndpoint != "" && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		return fmt.Errorf("minio credentials are required when MINIO_ENDPOINT is set")
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// String returns a string representation of the configuration without secrets
func (c *Config) String() string {
	return fmt.Sprintf("Config{Environment: %s, Port: %s, DatabaseURL: %s, NATS: %t, Media: %t}",
		c.Environment, c.Port, c.DatabaseURL, c.NATSURL != "", c.MinioEndpoint != "")
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	if c.AllowedOrigins != nil {
		clone.AllowedOrigins = make([]string, len(c.AllowedOrigins))
		copy(clone.AllowedOrigins, c.AllowedOrigins)
	}
	return &clone
}
