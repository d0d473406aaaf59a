// Command migrate_data copies contacts from the SQLite database at
// CONTACTS_DB_PATH into the PostgreSQL database described by CONTACTS_DB_*.
package main

import (
	"flag"

	"contacts-api/internal/config"
	"contacts-api/internal/database"
	"contacts-api/internal/logger"
	"contacts-api/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	batchSize := flag.Int("batch", 500, "rows copied per transaction")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	l, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise logger")
	}
	gormLog := logger.NewGormLogger(l)

	// 1. Connect to SQLite (Source)
	sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{Logger: gormLog})
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to SQLite")
	}
	l.Info().Str("path", cfg.DBPath).Msg("connected to SQLite")

	// 2. Connect to PostgreSQL (Destination)
	pgDB, err := database.Connect(postgres.Open(cfg.PostgresDSN()), gormLog)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}

	l.Info().Msg("starting contacts migration")

	var copied int
	var batch []models.Contact
	result := sqliteDB.Order("id ASC").FindInBatches(&batch, *batchSize, func(_ *gorm.DB, n int) error {
		err := pgDB.Transaction(func(tx *gorm.DB) error {
			// Rows already copied by an earlier run keep their destination values.
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&batch).Error
		})
		if err != nil {
			return err
		}
		copied += len(batch)
		l.Info().Int("batch", n).Int("copied", copied).Msg("batch migrated")
		return nil
	})
	if result.Error != nil {
		l.Fatal().Err(result.Error).Int("copied", copied).Msg("migration failed")
	}

	l.Info().Int("copied", copied).Msg("migration completed, run sync_sequences next")
}
