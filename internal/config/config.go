package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

type Config struct {
	Environment Environment
	Port        string
	AppURL      string
	FrontendURL string

	DatabaseURL string
	RedisURL    string
	SessionTTL  time.Duration

	KafkaBrokers       []string
	KafkaPurchaseTopic string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string

	RateLimit int

	PaystackSecretKey string
	PaystackPublicKey string
	PaystackBaseURL   string
	EtegramSecretKey  string
	EtegramPublicKey  string
	EtegramBaseURL    string

	HandoffTokenSecret string
	HandoffTokenTTL    time.Duration
	AdminAPIKeyHash    string

	TicketCatalogPath string

	ProviderTimeout    time.Duration
	ProviderMaxRetries int

	MultiAttendeeMode bool
	StrictPricing     bool

	ReconcileAfter time.Duration
	AbandonAfter   time.Duration
}

func Load() (*Config, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if env != "production" {
		if err := godotenv.Load(); err != nil {
			if err := godotenv.Load("../../.env"); err != nil {
				log.Printf("No .env file loaded, using process environment")
			}
		}
	}

	appURL := getEnv("APP_URL", "http://localhost:8080")

	cfg := &Config{
		Environment: Environment(env),
		Port:        getEnv("PORT", "8080"),
		AppURL:      appURL,
		FrontendURL: getEnv("FRONTEND_URL", appURL),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		SessionTTL:  time.Duration(getEnvAsInt("SESSION_TTL_HOURS", 24)) * time.Hour,

		KafkaBrokers:       getEnvAsList("KAFKA_BROKERS"),
		KafkaPurchaseTopic: getEnv("KAFKA_PURCHASE_TOPIC", "purchase-events"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("FROM_EMAIL", "tickets@ibomtechweek.com"),
		FromName:     getEnv("FROM_NAME", "IBOM Tech Week"),

		RateLimit: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		PaystackSecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackPublicKey: getEnv("PAYSTACK_PUBLIC_KEY", ""),
		PaystackBaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		EtegramSecretKey:  getEnv("ETEGRAM_SECRET_KEY", ""),
		EtegramPublicKey:  getEnv("ETEGRAM_PUBLIC_KEY", ""),
		EtegramBaseURL:    getEnv("ETEGRAM_BASE_URL", "https://api.etegram.com"),

		HandoffTokenSecret: getEnv("HANDOFF_TOKEN_SECRET", ""),
		HandoffTokenTTL:    time.Duration(getEnvAsInt("HANDOFF_TOKEN_TTL_MINUTES", 30)) * time.Minute,
		AdminAPIKeyHash:    getEnv("ADMIN_API_KEY_HASH", ""),

		TicketCatalogPath: getEnv("TICKET_CATALOG_PATH", ""),

		ProviderTimeout:    time.Duration(getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 15)) * time.Second,
		ProviderMaxRetries: getEnvAsInt("PROVIDER_MAX_RETRIES", 2),

		MultiAttendeeMode: getEnvAsBool("MULTI_ATTENDEE_MODE", false),
		StrictPricing:     getEnvAsBool("STRICT_PRICING", false),

		ReconcileAfter: time.Duration(getEnvAsInt("RECONCILE_AFTER_MINUTES", 15)) * time.Minute,
		AbandonAfter:   time.Duration(getEnvAsInt("ABANDON_AFTER_HOURS", 24)) * time.Hour,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, setting := range cfg.MissingProviderSettings() {
		log.Printf("Warning: %s is not set; payments needing it will fail", setting)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.SMTPHost != "" || c.SMTPUsername != "" || c.SMTPPassword != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("incomplete SMTP configuration: all SMTP fields must be set")
		}
	}

	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}

	return nil
}

// MissingProviderSettings lists provider keys that are absent. These are not
// load errors: the call that needs one fails with a configuration error.
func (c *Config) MissingProviderSettings() []string {
	var missing []string
	settings := []struct {
		name  string
		value string
	}{
		{"PAYSTACK_SECRET_KEY", c.PaystackSecretKey},
		{"ETEGRAM_SECRET_KEY", c.EtegramSecretKey},
		{"ETEGRAM_PUBLIC_KEY", c.EtegramPublicKey},
	}
	for _, s := range settings {
		if s.value == "" {
			missing = append(missing, s.name)
		}
	}
	return missing
}

// CallbackURL is where Paystack returns the payer after the hosted page.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.AppURL, "/") + "/payment/verify"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

func (c *Config) IsStaging() bool {
	return c.Environment == Staging
}

func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
