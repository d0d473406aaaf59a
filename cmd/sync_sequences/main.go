// Command sync_sequences moves the PostgreSQL id sequence of the contacts
// table past the highest copied id, so new inserts do not collide.
package main

import (
	"contacts-api/internal/config"
	"contacts-api/internal/database"
	"contacts-api/internal/logger"
	"contacts-api/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	l, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise logger")
	}

	db, err := database.Connect(postgres.Open(cfg.PostgresDSN()), logger.NewGormLogger(l))
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer database.Close(db)

	table := models.Contact{}.TableName()
	l.Info().Str("table", table).Msg("syncing PostgreSQL sequence")

	query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
	if err := db.Exec(query).Error; err != nil {
		l.Fatal().Err(err).Str("table", table).Msg("error syncing sequence")
	}

	l.Info().Str("table", table).Msg("sequence synced")
}
