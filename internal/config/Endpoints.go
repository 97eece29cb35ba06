package config

import (
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DB holds the PostgreSQL connection parameters (postgres backend and journal).
	DB state.DBConfig

	// RedisAddr is the address of the Redis server (redis backend).
	RedisAddr string
	// RedisPassword authenticates against Redis.
	RedisPassword string
	// RedisDB is the Redis logical database.
	RedisDB int
	// RedisNamespace prefixes every key the pool writes to Redis.
	RedisNamespace string

	// PriceFeed selects the oracle: "hermes" or "static".
	PriceFeed string
	// PriceFeedURL is the base URL of the Pyth Hermes service.
	PriceFeedURL string

	// KafkaBrokers are the brokers transfer instructions are published to. Empty keeps transfers in memory.
	KafkaBrokers []string
	// KafkaTransferTopic is the topic transfer instructions are published to.
	KafkaTransferTopic string
)

// LoadEndpointConfig loads endpoint configuration from environment variables.
// It is called by LoadConfig() and on its own by scripts that only need the database.
func LoadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	DB = state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", "fluxpool"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	DB.Port, err = getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return err
	}

	RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")
	RedisDB, err = getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return err
	}
	RedisNamespace = getEnvOrDefault("REDIS_NAMESPACE", "fluxpool")

	PriceFeed = getEnvOrDefault("PRICE_FEED", "hermes")
	PriceFeedURL = getEnvOrDefault("PRICE_FEED_URL", "https://hermes.pyth.network")

	KafkaBrokers = getEnvAsList("KAFKA_BROKERS")
	KafkaTransferTopic = getEnvOrDefault("KAFKA_TRANSFER_TOPIC", "fluxpool.transfers")

	log.Debug().
		Str("DBHost", DB.Host).
		Str("RedisAddr", RedisAddr).
		Str("PriceFeed", PriceFeed).
		Str("PriceFeedURL", PriceFeedURL).
		Strs("KafkaBrokers", KafkaBrokers).
		Msg("Endpoint configuration loaded")

	return nil
}
