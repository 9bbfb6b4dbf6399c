// Package config provides configuration loading and management for the application.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Identity of the registry: estimates are expressed in this chain's native currency
	SelfChainID types.ChainID
	SelfSymbol  string

	// Initial admin account, used when the store holds none
	AdminAddress common.Address

	// Hex secp256k1 key used to sign quotes; empty generates an ephemeral key
	SignerKey string

	// Longest validity an admin request signature may claim
	SignatureMaxAge time.Duration

	// Optional YAML seed applied at start
	SeedFile string

	// PostgreSQL URL; empty keeps state in memory
	DatabaseURL string

	// Strategy validation
	StrictStrategies bool
	MaxStepsPerPhase int

	// Price feeds keyed by the addresses stored in registry entries
	PriceFeeds []types.FeedConfig

	// Circuit breaker on feed readings, as a fraction (0.5 = 50%); zero disables it
	OracleMaxChange   float64
	CircuitResetDelay time.Duration

	// Event webhook; empty disables export
	EventsWebhookURL string
	EventsAPIKey     string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// HTTP limits
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	BatchWorkers   int
	MaxBatchSize   int

	LogLevel  string
	LogFormat string
}

// Load creates a new Config from environment variables
func Load() (Config, error) {
	cfg := Config{
		Port:              GetEnvOrDefault("PORT", "8080"),
		SelfChainID:       GetEnvAsUint64("SELF_CHAIN_ID", 0),
		SelfSymbol:        GetEnvOrDefault("SELF_SYMBOL", ""),
		SignerKey:         GetEnvOrDefault("SIGNER_KEY", ""),
		SignatureMaxAge:   GetEnvAsDuration("SIGNATURE_MAX_AGE", 5*time.Minute),
		SeedFile:          GetEnvOrDefault("SEED_FILE", ""),
		DatabaseURL:       GetEnvOrDefault("DATABASE_URL", ""),
		StrictStrategies:  GetEnvAsBool("STRICT_STRATEGIES", false),
		MaxStepsPerPhase:  GetEnvAsInt("MAX_STEPS_PER_PHASE", 0),
		OracleMaxChange:   GetEnvAsFloat("ORACLE_MAX_CHANGE", 0),
		CircuitResetDelay: GetEnvAsDuration("CIRCUIT_RESET_DELAY", 5*time.Minute),
		EventsWebhookURL:  GetEnvOrDefault("EVENTS_WEBHOOK_URL", ""),
		EventsAPIKey:      GetEnvOrDefault("EVENTS_API_KEY", ""),
		OtelEndpoint:      GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RequestTimeout:    GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:      GetEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:    GetEnvAsInt("RATE_LIMIT_BURST", 40),
		BatchWorkers:      GetEnvAsInt("BATCH_WORKERS", 4),
		MaxBatchSize:      GetEnvAsInt("MAX_BATCH_SIZE", 100),
		LogLevel:          strings.ToLower(GetEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(GetEnvOrDefault("LOG_FORMAT", "json")),
	}

	if raw, ok := GetEnv("ADMIN_ADDRESS"); ok {
		if !common.IsHexAddress(raw) {
			return cfg, fmt.Errorf("ADMIN_ADDRESS: invalid address %q", raw)
		}
		cfg.AdminAddress = common.HexToAddress(raw)
	}

	if raw, ok := GetEnv("PRICE_FEEDS"); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.PriceFeeds); err != nil {
			return cfg, fmt.Errorf("PRICE_FEEDS: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings the service cannot start without
func (c Config) Validate() error {
	if c.SelfChainID == 0 {
		return fmt.Errorf("SELF_CHAIN_ID is required")
	}
	if c.SelfSymbol == "" {
		return fmt.Errorf("SELF_SYMBOL is required")
	}
	if c.AdminAddress == (common.Address{}) {
		return fmt.Errorf("ADMIN_ADDRESS is required")
	}
	if c.SignatureMaxAge <= 0 {
		return fmt.Errorf("SIGNATURE_MAX_AGE must be positive")
	}
	if c.OracleMaxChange < 0 {
		return fmt.Errorf("ORACLE_MAX_CHANGE must not be negative")
	}
	for _, f := range c.PriceFeeds {
		if !common.IsHexAddress(f.Address) {
			return fmt.Errorf("price feed %q: invalid address", f.Address)
		}
	}
	return nil
}

// OracleMaxChangeBps converts OracleMaxChange to basis points
func (c Config) OracleMaxChangeBps() uint64 {
	return uint64(c.OracleMaxChange * 10000)
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Invalid integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsUint64 retrieves an environment variable as an unsigned integer with a default value
func GetEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value, exists := GetEnv(key); exists {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
		logrus.Warnf("Invalid unsigned integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.Warnf("Invalid float in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		logrus.Warnf("Invalid boolean in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}
