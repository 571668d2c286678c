package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vempraca_backend/pkg/visibility"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Billing    BillingConfig
	Visibility VisibilityConfig
	Backfill   BackfillConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	// Secret is the Supabase project JWT secret used to verify access tokens.
	Secret string
}

type BillingConfig struct {
	SecretKey            string
	WebhookSigningSecret string
	SandboxMode          bool
	Timeout              time.Duration
	APIBaseURL           string
}

type VisibilityConfig struct {
	PaymentFailurePolicy visibility.PaymentFailurePolicy
	EnforceEventOrdering bool
	StoreTimeout         time.Duration
}

type BackfillConfig struct {
	// Schedule is a cron expression; empty disables the job.
	Schedule string
	Timeout  time.Duration
	PageSize int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	godotenv.Load()

	policy, err := visibility.ParsePaymentFailurePolicy(getEnv("PAYMENT_FAILURE_POLICY", string(visibility.HideImmediately)))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("SUPABASE_JWT_SECRET", ""),
		},
		Billing: BillingConfig{
			SecretKey:            getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSigningSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SandboxMode:          getBool("BILLING_SANDBOX", true),
			Timeout:              getDuration("BILLING_TIMEOUT", 10*time.Second),
			APIBaseURL:           getEnv("STRIPE_API_BASE_URL", ""),
		},
		Visibility: VisibilityConfig{
			PaymentFailurePolicy: policy,
			EnforceEventOrdering: getBool("ENFORCE_EVENT_ORDERING", false),
			StoreTimeout:         getDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Backfill: BackfillConfig{
			Schedule: backfillSchedule(getEnv("BACKFILL_CRON", "0 4 * * *")),
			Timeout:  getDuration("BACKFILL_TIMEOUT", 10*time.Minute),
			PageSize: getInt("BACKFILL_PAGE_SIZE", 100),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET is not set"))
	}
	if c.Billing.SecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is not set"))
	}
	if c.Billing.WebhookSigningSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is not set"))
	}
	if c.Billing.SandboxMode && strings.HasPrefix(c.Billing.SecretKey, "sk_live_") {
		errs = append(errs, errors.New("BILLING_SANDBOX is enabled with a live Stripe key"))
	}
	return errors.Join(errs...)
}

// Timeouts returns the collaborator call bounds for the visibility package.
func (c *Config) Timeouts() visibility.Timeouts {
	return visibility.Timeouts{
		Store:   c.Visibility.StoreTimeout,
		Billing: c.Billing.Timeout,
	}
}

// backfillSchedule maps "off" to the empty schedule that disables the job.
func backfillSchedule(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "off") {
		return ""
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
