package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	APIPort int

	// Logging
	LogLevel string

	// Security
	APIKey         string
	AllowedOrigins string
	AppEnv         string

	// Rate Limiting
	RateLimitRequests float64
	RateLimitBurst    int
	MessageDailyLimit int

	// Delivery
	DeliveryCadence         time.Duration
	DeliveryDispatchTimeout time.Duration
	DeliveryWorkers         int
	DeliveryMaxSendAttempts int
	DeliveryRetryBackoff    time.Duration
	DeliveryMaxRetryBackoff time.Duration

	// Outbound SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPStartTLS bool

	// Notification content
	FrontendURL string

	// Optional features
	NotificationArchivePath string
	SMTPCaptureAddr         string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	if cfg.APIPort, err = intEnv("API_PORT", 8080); err != nil {
		return nil, err
	}

	cfg.LogLevel = stringEnv("LOG_LEVEL", "info")

	// Security configuration
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.AppEnv = stringEnv("APP_ENV", "development")

	// Rate limiting configuration
	if rps := os.Getenv("RATE_LIMIT_REQUESTS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimitRequests = v
		}
	} else {
		cfg.RateLimitRequests = 10.0
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimitBurst = v
		}
	} else {
		cfg.RateLimitBurst = 20
	}

	if cfg.MessageDailyLimit, err = intEnv("MESSAGE_DAILY_LIMIT", 5); err != nil {
		return nil, err
	}

	// Delivery configuration
	if cfg.DeliveryCadence, err = durationEnv("DELIVERY_CADENCE", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DeliveryDispatchTimeout, err = durationEnv("DELIVERY_DISPATCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.DeliveryWorkers, err = intEnv("DELIVERY_WORKERS", 1); err != nil {
		return nil, err
	}
	if cfg.DeliveryMaxSendAttempts, err = intEnv("DELIVERY_MAX_SEND_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.DeliveryRetryBackoff, err = durationEnv("DELIVERY_RETRY_BACKOFF", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DeliveryMaxRetryBackoff, err = durationEnv("DELIVERY_MAX_RETRY_BACKOFF", 24*time.Hour); err != nil {
		return nil, err
	}

	// SMTP configuration
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = stringEnv("SMTP_FROM", "no-reply@timecapsule.local")
	cfg.SMTPFromName = stringEnv("SMTP_FROM_NAME", "Time Capsule")
	if cfg.SMTPStartTLS, err = boolEnv("SMTP_STARTTLS", true); err != nil {
		return nil, err
	}

	cfg.FrontendURL = strings.TrimRight(stringEnv("FRONTEND_URL", "http://localhost:3000"), "/")

	cfg.NotificationArchivePath = os.Getenv("NOTIFICATION_ARCHIVE_PATH")
	cfg.SMTPCaptureAddr = os.Getenv("SMTP_CAPTURE_ADDR")

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Production-specific validation
	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// MaxDeliverySendAttempts is the ceiling for DELIVERY_MAX_SEND_ATTEMPTS
const MaxDeliverySendAttempts = 20

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.DeliveryCadence <= 0 {
		return fmt.Errorf("DeliveryCadence must be positive")
	}
	if c.DeliveryDispatchTimeout <= 0 {
		return fmt.Errorf("DeliveryDispatchTimeout must be positive")
	}
	if c.DeliveryWorkers < 1 {
		return fmt.Errorf("DeliveryWorkers must be at least 1")
	}
	if c.DeliveryMaxSendAttempts < 1 || c.DeliveryMaxSendAttempts > MaxDeliverySendAttempts {
		return fmt.Errorf("DeliveryMaxSendAttempts must be between 1 and %d", MaxDeliverySendAttempts)
	}
	if c.DeliveryMaxSendAttempts > 1 {
		if c.DeliveryRetryBackoff <= 0 {
			return fmt.Errorf("DeliveryRetryBackoff must be positive when retries are enabled")
		}
		if c.DeliveryMaxRetryBackoff < c.DeliveryRetryBackoff {
			return fmt.Errorf("DeliveryMaxRetryBackoff must not be shorter than DeliveryRetryBackoff")
		}
	}
	if c.SMTPHost == "" && c.SMTPCaptureAddr == "" {
		return fmt.Errorf("SMTPHost is required unless SMTPCaptureAddr is set")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTPPort must be between 1 and 65535")
	}
	if c.SMTPFrom == "" {
		return fmt.Errorf("SMTPFrom cannot be empty")
	}
	if c.MessageDailyLimit < 1 {
		return fmt.Errorf("MessageDailyLimit must be at least 1")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	if c.AllowedOrigins == "" {
		return fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}

	// Check for wildcard in production
	if strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard (*) origins are not allowed in production")
	}

	// Check for sslmode=disable in database URL
	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	if c.SMTPCaptureAddr != "" {
		return fmt.Errorf("SMTP_CAPTURE_ADDR must not be set in production")
	}

	if !c.SMTPStartTLS {
		return fmt.Errorf("SMTP_STARTTLS must be enabled in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("allowed_origins_set", c.AllowedOrigins != ""),
		slog.Float64("rate_limit_rps", c.RateLimitRequests),
		slog.Int("rate_limit_burst", c.RateLimitBurst),
		slog.Int("message_daily_limit", c.MessageDailyLimit),
		slog.Duration("delivery_cadence", c.DeliveryCadence),
		slog.Duration("delivery_dispatch_timeout", c.DeliveryDispatchTimeout),
		slog.Int("delivery_workers", c.DeliveryWorkers),
		slog.Int("delivery_max_send_attempts", c.DeliveryMaxSendAttempts),
		slog.Duration("delivery_retry_backoff", c.DeliveryRetryBackoff),
		slog.Duration("delivery_max_retry_backoff", c.DeliveryMaxRetryBackoff),
		slog.String("smtp_host", c.SMTPHost),
		slog.Int("smtp_port", c.SMTPPort),
		slog.Bool("smtp_auth_set", c.SMTPUsername != ""),
		slog.Bool("smtp_starttls", c.SMTPStartTLS),
		slog.String("frontend_url", c.FrontendURL),
		slog.Bool("archive_enabled", c.NotificationArchivePath != ""),
		slog.String("smtp_capture_addr", c.SMTPCaptureAddr),
	)
}

func stringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a valid boolean: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return v, nil
}
