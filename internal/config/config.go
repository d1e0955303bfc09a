package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/validation"
)

const (
	// NetworkTest selects the rail's test network.
	NetworkTest = "test"
	// NetworkProduction selects the rail's production network.
	NetworkProduction = "production"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Payment rail configuration
	RailGatewayURL string
	RailNetwork    string
	RailAPIToken   string
	FundingAddress string
	// ReserveFloor is the funding balance kept back from distribution.
	ReserveFloor float64
	// FeeReserve is the funding headroom required beyond a payment amount.
	FeeReserve float64

	// Run configuration
	MaxRecipientsPerRun  int
	MaxWithdrawalsPerRun int
	RunInterval          time.Duration
	RunTimeBudget        time.Duration

	// Trigger authentication
	SchedulerToken string
	APIBearerToken string

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string

	// Notification configuration
	TelegramBotToken       string
	TelegramOperatorChatID int64
	OperatorEmail          string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "settler"),

		RailGatewayURL: getEnv("RAIL_GATEWAY_URL", ""),
		RailNetwork:    getEnv("RAIL_NETWORK", NetworkTest),
		RailAPIToken:   getEnv("RAIL_API_TOKEN", ""),
		FundingAddress: getEnv("FUNDING_ADDRESS", ""),
		ReserveFloor:   getEnvAsFloat("RESERVE_FLOOR", 0),
		FeeReserve:     getEnvAsFloat("FEE_RESERVE", 0),

		MaxRecipientsPerRun:  getEnvAsInt("MAX_RECIPIENTS_PER_RUN", 500),
		MaxWithdrawalsPerRun: getEnvAsInt("MAX_WITHDRAWALS_PER_RUN", 100),
		RunInterval:          time.Duration(getEnvAsInt("RUN_INTERVAL_MINUTES", 60)) * time.Minute,
		RunTimeBudget:        time.Duration(getEnvAsInt("RUN_TIME_BUDGET_SECONDS", 300)) * time.Second,

		SchedulerToken: getEnv("SCHEDULER_TOKEN", ""),
		APIBearerToken: getEnv("API_BEARER_TOKEN", ""),

		TelegramBotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramOperatorChatID: getEnvAsInt64("TELEGRAM_OPERATOR_CHAT_ID", 0),
		OperatorEmail:          getEnv("OPERATOR_EMAIL", ""),

		SMTPHost:     getEnv("SMTP_HOST", "smtp.example.com"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),

		APIPort: getEnvAsInt("API_PORT", 6532),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set.
// The funding address is normalized to lowercase as a side effect.
func (c *Config) Validate() error {
	if c.RailGatewayURL == "" {
		return fmt.Errorf("RAIL_GATEWAY_URL is required")
	}

	if c.RailNetwork != NetworkTest && c.RailNetwork != NetworkProduction {
		return fmt.Errorf("RAIL_NETWORK must be %q or %q, got %q", NetworkTest, NetworkProduction, c.RailNetwork)
	}

	if c.FundingAddress == "" {
		return fmt.Errorf("FUNDING_ADDRESS is required")
	}

	normalized, err := validation.ValidateAndNormalizeAddress(c.FundingAddress)
	if err != nil {
		return fmt.Errorf("invalid FUNDING_ADDRESS format: %w", err)
	}
	c.FundingAddress = normalized

	network, err := validation.AddressNetwork(c.FundingAddress)
	if err != nil {
		return fmt.Errorf("invalid FUNDING_ADDRESS format: %w", err)
	}
	if network != c.RailNetwork {
		return fmt.Errorf("FUNDING_ADDRESS belongs to the %s network, RAIL_NETWORK is %s", network, c.RailNetwork)
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.ReserveFloor < 0 {
		return fmt.Errorf("RESERVE_FLOOR must not be negative")
	}

	if c.FeeReserve < 0 {
		return fmt.Errorf("FEE_RESERVE must not be negative")
	}

	if c.MaxRecipientsPerRun < 1 {
		return fmt.Errorf("MAX_RECIPIENTS_PER_RUN must be at least 1")
	}

	if c.MaxWithdrawalsPerRun < 1 {
		return fmt.Errorf("MAX_WITHDRAWALS_PER_RUN must be at least 1")
	}

	if c.RunInterval <= 0 {
		return fmt.Errorf("RUN_INTERVAL_MINUTES must be positive")
	}

	if c.RunTimeBudget <= 0 {
		return fmt.Errorf("RUN_TIME_BUDGET_SECONDS must be positive")
	}

	if c.SchedulerToken == "" && c.APIBearerToken == "" {
		return fmt.Errorf("at least one of SCHEDULER_TOKEN or API_BEARER_TOKEN is required")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt64(name string, defaultValue int64) int64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}
