package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBDriver string
	DBConn   string
	LogLevel string

	JWTSecret           string
	TokenTTL            time.Duration
	AdminBootstrapToken string

	EncryptionKey     string
	CardNumberPrefix  string
	CardValidityYears int
	ExpirySweepCron   string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
}

// NewConfig loads configuration from environment variables.
// A .env file in the working directory is read first if present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	validityYears, err := strconv.Atoi(getEnv("CARD_VALIDITY_YEARS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid CARD_VALIDITY_YEARS: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		DBDriver: getEnv("DB_DRIVER", DriverPostgres),
		DBConn:   getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		TokenTTL:            tokenTTL,
		AdminBootstrapToken: getEnv("ADMIN_BOOTSTRAP_TOKEN", ""),

		EncryptionKey:     getEnv("ENCRYPTION_KEY", ""),
		CardNumberPrefix:  getEnv("CARD_NUMBER_PREFIX", "400000"),
		CardValidityYears: validityYears,
		ExpirySweepCron:   getEnv("EXPIRY_SWEEP_CRON", "0 0 * * *"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "noreply@bank.local"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverMemory {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.DBDriver)
	}
	if c.DBDriver == DriverPostgres && c.DBConn == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.CardValidityYears < 1 {
		return fmt.Errorf("CARD_VALIDITY_YEARS must be at least 1")
	}
	if len(c.CardNumberPrefix) > 12 {
		return fmt.Errorf("CARD_NUMBER_PREFIX is too long: %d digits", len(c.CardNumberPrefix))
	}
	return nil
}

// NotificationsEnabled reports whether SMTP delivery is configured
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
