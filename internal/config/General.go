package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
	"github.com/rs/zerolog/log"
)

// Store backends selectable through STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Pool is the pool configuration used when the store holds none yet.
	Pool types.PoolConfig

	// AddressPrefix is the bech32 prefix addresses must carry. Empty disables validation.
	AddressPrefix string

	// StoreBackend selects where pool state is kept: memory, postgres or redis.
	StoreBackend string

	// AssetsFile is an optional YAML file of assets registered at startup.
	AssetsFile string

	// WebPort is the port of the HTTP API.
	WebPort string

	// APIKey authorizes the operation routes of the HTTP API. Empty leaves the API read-only.
	APIKey string

	// OutboxRetryInterval is how often transfers the ledger has not accepted are re-sent.
	OutboxRetryInterval time.Duration

	// LogLevel is passed to logger.Initialize.
	LogLevel string

	// LogFile optionally receives a copy of every log line.
	LogFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Only POOL_ADMIN is required; everything else falls back to the defaults in Parameters.go.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	admin, err := getEnv("POOL_ADMIN")
	if err != nil {
		return err
	}
	Pool = DefaultPoolConfig(admin)

	if raw := getEnvOrDefault("POOL_SWAP_FEE_RATE", ""); raw != "" {
		rate, err := utils.DecFromString(raw)
		if err != nil {
			return errors.New("environment variable POOL_SWAP_FEE_RATE must be a decimal, got: " + raw)
		}
		Pool.SwapFeeRate = rate
	}
	if Pool.Window, err = getEnvAsDuration("POOL_WINDOW", Pool.Window); err != nil {
		return err
	}
	if Pool.UnbondingPeriod, err = getEnvAsDuration("POOL_UNBONDING_PERIOD", Pool.UnbondingPeriod); err != nil {
		return err
	}
	if Pool.PriceStalenessBound, err = getEnvAsDuration("POOL_PRICE_STALENESS", Pool.PriceStalenessBound); err != nil {
		return err
	}
	if err := Pool.Validate(); err != nil {
		return err
	}

	AddressPrefix = getEnvOrDefault("ADDRESS_PREFIX", "")
	if AddressPrefix != "" {
		if err := utils.ValidateAddress(admin, AddressPrefix); err != nil {
			return err
		}
	}

	StoreBackend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreMemory))
	switch StoreBackend {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return errors.New("environment variable STORE_BACKEND must be memory, postgres or redis, got: " + StoreBackend)
	}

	AssetsFile = getEnvOrDefault("ASSETS_FILE", "")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	APIKey = strings.TrimSpace(getEnvOrDefault("API_KEY", ""))
	if OutboxRetryInterval, err = getEnvAsDuration("OUTBOX_RETRY_INTERVAL", 30*time.Second); err != nil {
		return err
	}
	if OutboxRetryInterval <= 0 {
		return errors.New("environment variable OUTBOX_RETRY_INTERVAL must be positive")
	}
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	// Load endpoint configuration
	if err := LoadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("admin", Pool.Admin).
		Str("swapFeeRate", Pool.SwapFeeRate.String()).
		Dur("window", Pool.Window).
		Dur("unbondingPeriod", Pool.UnbondingPeriod).
		Str("storeBackend", StoreBackend).
		Bool("operationsEnabled", APIKey != "").
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, or def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsInt retrieves an environment variable as an int, or def when unset.
func getEnvAsInt(key string, def int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a duration ("1h", "168h"), or def when unset.
func getEnvAsDuration(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsList splits a comma separated environment variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnvOrDefault(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// decOrZero is used by the defaults, where the literal is known to be valid.
func decOrZero(s string) sdkmath.LegacyDec {
	d, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return d
}
