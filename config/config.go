package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Brokerage API configuration
	BrokerBaseURL  string
	BrokerToken    string
	BrokerDeviceID string
	AccountID      string
	StreamWSURL    string // empty disables the push stream and falls back to HTTP polling

	// Watched instrument
	Symbol           string
	TickerID         int64
	OptionContractID int64

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Operator alert webhook (optional)
	AlertWebhookURL string

	// Metrics
	MetricsPort int

	// Trading configuration
	Trading TradingConfig
}

// TradingConfig holds auto-exit parameters and tolerances
type TradingConfig struct {
	// Evaluation cadence while a position is open
	EvalIntervalMs int

	// Exit execution
	TickSize          float64
	SlippagePct       float64 // share of target profit / max loss budgeted for slippage
	MaxExitAttempts   int
	OrderUpdateWaitMs int

	// Candle persistence
	PersistIntervalMinutes int
	MaxCachedBars          int
	SnapshotMaxAgeHours    int
	BarMaxAgeHours         int

	// Connectivity loss handling
	FlattenOnDisconnect bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		BrokerBaseURL:  getEnvOrDefault("BROKER_BASE_URL", "https://ustrade.webullfinance.com/api"),
		BrokerToken:    os.Getenv("BROKER_ACCESS_TOKEN"),
		BrokerDeviceID: os.Getenv("BROKER_DEVICE_ID"),
		AccountID:      os.Getenv("BROKER_ACCOUNT_ID"),
		StreamWSURL:    os.Getenv("BROKER_STREAM_WS_URL"),

		Symbol:           getEnvOrDefault("WATCH_SYMBOL", "SPY"),
		TickerID:         getEnvInt64("WATCH_TICKER_ID", 0),
		OptionContractID: getEnvInt64("WATCH_OPTION_CONTRACT_ID", 0),

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "autopilot_exits"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "autopilot"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "autopilot123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),

		MetricsPort: getEnvInt("METRICS_PORT", 9090),

		// Trading configuration
		Trading: TradingConfig{
			EvalIntervalMs: getEnvInt("AUTOEXIT_EVAL_INTERVAL_MS", 50),

			TickSize:          getEnvFloat("AUTOEXIT_TICK_SIZE", 0.01),
			SlippagePct:       getEnvFloat("AUTOEXIT_SLIPPAGE_PCT", 0.05),
			MaxExitAttempts:   getEnvInt("AUTOEXIT_MAX_ATTEMPTS", 3),
			OrderUpdateWaitMs: getEnvInt("AUTOEXIT_ORDER_WAIT_MS", 500),

			PersistIntervalMinutes: getEnvInt("CANDLE_PERSIST_INTERVAL_MIN", 5),
			MaxCachedBars:          getEnvInt("CANDLE_MAX_CACHED_BARS", 390),
			SnapshotMaxAgeHours:    getEnvInt("CANDLE_SNAPSHOT_MAX_AGE_HOURS", 24),
			BarMaxAgeHours:         getEnvInt("CANDLE_BAR_MAX_AGE_HOURS", 48),

			FlattenOnDisconnect: getEnvOrDefault("AUTOEXIT_FLATTEN_ON_DISCONNECT", "false") == "true",
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvInt64 gets environment variable as int64 or returns default value
func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int64
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
