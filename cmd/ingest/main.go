package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"contacts-api/internal/config"
	"contacts-api/internal/database"
	"contacts-api/internal/ingest"
	"contacts-api/internal/logger"
	"contacts-api/internal/repository"
	"contacts-api/internal/storage"
	"contacts-api/internal/storage/local"

	"github.com/rs/zerolog/log"
)

func main() {
	once := flag.Bool("once", false, "process pending files and exit instead of watching")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	l, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise logger")
	}

	db, err := database.Open(cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	store, err := local.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialise storage")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := ingest.NewProcessor(repository.NewContactRepository(db), store, nil, l)
	watcher := ingest.NewWatcher(processor, store, storage.ContactsDirectory, store.Dir(storage.ContactsDirectory))

	if *once {
		err = watcher.ProcessPending(ctx)
	} else {
		err = watcher.Run(ctx)
	}
	if err != nil {
		l.Error().Err(err).Msg("ingestion stopped")
		return
	}
	l.Info().Msg("ingestion finished")
}
