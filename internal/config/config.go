package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string
	AutoMigrate bool

	// Auth0
	Auth0Domain   string
	Auth0Audience string

	// Server
	Port               string
	CORSOrigins        []string
	Env                string
	RateLimitPerMinute int
	AdminAPIKey        string

	// Aggregation engine
	Budget BudgetConfig

	// Scheduled sweeps
	SweepInterval time.Duration

	// Income roll-up cache
	IncomeCacheTTL  time.Duration
	IncomeCacheSize int

	// Optional integrations
	AMQP AMQPConfig
	S3   S3Config
}

// BudgetConfig tunes the budget aggregator
type BudgetConfig struct {
	DefaultThresholds []int
	RecomputeTimeout  time.Duration
	MaxCASRetries     int
}

// AMQPConfig holds RabbitMQ settings; an empty URL disables publishing
type AMQPConfig struct {
	URL      string
	Exchange string
}

// Enabled reports whether an AMQP broker is configured
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// S3Config holds AWS S3 configuration
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for MinIO/LocalStack local dev
}

// Enabled reports whether receipt storage is configured
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	thresholds, err := parseThresholds(getEnv("BUDGET_ALERT_THRESHOLDS", "50,75,90,100"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AutoMigrate:        getEnvBool("AUTO_MIGRATE", false),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", ""),
		Port:               getEnv("PORT", "8080"),
		CORSOrigins:        strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:                getEnv("ENV", "development"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		AdminAPIKey:        getEnv("ADMIN_API_KEY", ""),
		Budget: BudgetConfig{
			DefaultThresholds: thresholds,
			RecomputeTimeout:  getEnvDuration("RECOMPUTE_TIMEOUT", 10*time.Second),
			MaxCASRetries:     getEnvInt("CAS_MAX_RETRIES", 5),
		},
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", time.Hour),
		IncomeCacheTTL:  getEnvDuration("INCOME_CACHE_TTL", 5*time.Minute),
		IncomeCacheSize: getEnvInt("INCOME_CACHE_SIZE", 1000),
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "tally.events"),
		},
		S3: S3Config{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Empty = use AWS, set for MinIO/LocalStack
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSweeper reads the subset of configuration the sweeper binary needs
func LoadSweeper() (*Config, error) {
	_ = godotenv.Load()

	thresholds, err := parseThresholds(getEnv("BUDGET_ALERT_THRESHOLDS", "50,75,90,100"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Env:         getEnv("ENV", "development"),
		Budget: BudgetConfig{
			DefaultThresholds: thresholds,
			RecomputeTimeout:  getEnvDuration("RECOMPUTE_TIMEOUT", 10*time.Second),
			MaxCASRetries:     getEnvInt("CAS_MAX_RETRIES", 5),
		},
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", time.Hour),
		IncomeCacheTTL:  getEnvDuration("INCOME_CACHE_TTL", 5*time.Minute),
		IncomeCacheSize: getEnvInt("INCOME_CACHE_SIZE", 1000),
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "tally.events"),
		},
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.Budget.MaxCASRetries < 1 {
		return fmt.Errorf("CAS_MAX_RETRIES must be at least 1")
	}
	if c.Budget.RecomputeTimeout <= 0 {
		return fmt.Errorf("RECOMPUTE_TIMEOUT must be positive")
	}
	return nil
}

// parseThresholds parses a comma-separated list of percentages, returning
// them sorted ascending without duplicates.
func parseThresholds(raw string) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pct, err := strconv.Atoi(part)
		if err != nil || pct < 1 || pct > 1000 {
			return nil, fmt.Errorf("BUDGET_ALERT_THRESHOLDS: invalid percentage %q", part)
		}
		if !seen[pct] {
			seen[pct] = true
			out = append(out, pct)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("BUDGET_ALERT_THRESHOLDS must not be empty")
	}
	sort.Ints(out)
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
