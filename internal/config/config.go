// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Observability
	OTLPEndpoint string // OTLP/gRPC trace collector (optional)

	// Security
	RateLimitRPM int // HTTP requests per minute per client

	// Webhooks (optional). When WebhookURL is set, notifications are
	// also POSTed there, HMAC-signed with WebhookSecret.
	WebhookURL    string
	WebhookSecret string

	// Rules govern transfer validation and screening.
	Rules Rules
}

// Rules holds the business-rule limits for transfers.
type Rules struct {
	MinTransfer        decimal.Decimal // smallest allowed transfer
	MaxTransfer        decimal.Decimal // largest allowed transfer
	DailyLimit         int             // transfers per account per UTC day
	DailyAmountLimit   decimal.Decimal // cumulative amount per account per UTC day
	Cooldown           time.Duration   // minimum gap between transfers
	FlagThreshold      decimal.Decimal // amounts above this flag new accounts
	NewUserThreshold   int             // history entries before large transfers are trusted
	WelcomeCredit      decimal.Decimal // balance seeded at registration
	VelocityWindow     time.Duration   // trailing window for the velocity monitor
	VelocityMax        int             // completed transfers tolerated inside the window
	RepeatRecipientN   int             // transfers to one recipient inside RepeatWindow that flag
	RepeatWindow       time.Duration
	OddHourStart       int // local hour range treated as unusual
	OddHourEnd         int
	OddHourAmountFloor decimal.Decimal // amounts above this during odd hours flag
}

// Defaults
const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"
	DefaultRateRPM  = 120
)

// DefaultRules returns the production business rules.
func DefaultRules() Rules {
	return Rules{
		MinTransfer:        decimal.RequireFromString("1.00"),
		MaxTransfer:        decimal.RequireFromString("5000.00"),
		DailyLimit:         10,
		DailyAmountLimit:   decimal.RequireFromString("10000.00"),
		Cooldown:           2 * time.Minute,
		FlagThreshold:      decimal.RequireFromString("1000.00"),
		NewUserThreshold:   3,
		WelcomeCredit:      decimal.RequireFromString("100.00"),
		VelocityWindow:     5 * time.Minute,
		VelocityMax:        5,
		RepeatRecipientN:   3,
		RepeatWindow:       time.Hour,
		OddHourStart:       2,
		OddHourEnd:         5,
		OddHourAmountFloor: decimal.RequireFromString("500.00"),
	}
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", DefaultPort),
		Env:           getEnv("ENV", DefaultEnv),
		LogLevel:      getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:   os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:  getEnvInt("RATE_LIMIT_RPM", DefaultRateRPM),
		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		Rules:         DefaultRules(),
	}

	// Per-environment overrides of the transfer rules.
	if err := overrideDecimal("MIN_TRANSFER", &cfg.Rules.MinTransfer); err != nil {
		return nil, err
	}
	if err := overrideDecimal("MAX_TRANSFER", &cfg.Rules.MaxTransfer); err != nil {
		return nil, err
	}
	if err := overrideDecimal("DAILY_TRANSFER_AMOUNT_LIMIT", &cfg.Rules.DailyAmountLimit); err != nil {
		return nil, err
	}
	if err := overrideDecimal("WELCOME_CREDIT", &cfg.Rules.WelcomeCredit); err != nil {
		return nil, err
	}
	cfg.Rules.DailyLimit = getEnvInt("DAILY_TRANSFER_LIMIT", cfg.Rules.DailyLimit)
	if v := getEnvInt("COOLDOWN_MINUTES", 0); v > 0 {
		cfg.Rules.Cooldown = time.Duration(v) * time.Minute
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.Rules.MinTransfer.Sign() <= 0 {
		return fmt.Errorf("MIN_TRANSFER must be positive")
	}
	if c.Rules.MaxTransfer.LessThan(c.Rules.MinTransfer) {
		return fmt.Errorf("MAX_TRANSFER must be >= MIN_TRANSFER")
	}
	if c.Rules.DailyLimit <= 0 {
		return fmt.Errorf("DAILY_TRANSFER_LIMIT must be positive")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func overrideDecimal(key string, dst *decimal.Decimal) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
