package main

import (
	"os"

	"github.com/elys-network/fluxpool/internal/config"
	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Drops and recreates the pool tables. All pool state and operation receipts are lost.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Starting database reset script...")

	if err := config.LoadEndpointConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load database configuration")
	}

	log.Info().
		Str("host", config.DB.Host).
		Int("port", config.DB.Port).
		Str("user", config.DB.User).
		Str("dbname", config.DB.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(config.DB); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}

	log.Info().Msg("Database reset complete!")
}
