package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"contacts-api/internal/api"
	"contacts-api/internal/config"
	"contacts-api/internal/database"
	"contacts-api/internal/ingest"
	"contacts-api/internal/logger"
	"contacts-api/internal/repository"
	"contacts-api/internal/storage"
	"contacts-api/internal/storage/local"
	"contacts-api/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
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
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
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

	hub := ws.NewHub(l)
	go hub.Run(ctx)

	contacts := repository.NewContactRepository(db)

	var workers sync.WaitGroup
	if cfg.IngestEnabled {
		processor := ingest.NewProcessor(contacts, store, hub, l)
		watcher := ingest.NewWatcher(processor, store, storage.ContactsDirectory, store.Dir(storage.ContactsDirectory))
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := watcher.Run(ctx); err != nil {
				l.Error().Err(err).Msg("ingestion watcher stopped")
			}
		}()
	}

	router := api.NewRouter(api.Dependencies{
		Contacts:      contacts,
		Storage:       store,
		Events:        hub,
		Hub:           hub.ServeWs,
		Ping:          func() error { return database.Ping(db) },
		MaxUploadSize: cfg.MaxUploadSize,
		CORSOrigin:    cfg.CORSOrigin,
		Logger:        l,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)

	// The watcher may be mid-import; the database stays open until it returns.
	workers.Wait()

	if shutdownErr != nil {
		l.Error().Err(shutdownErr).Msg("server forced to shutdown")
		_ = database.Close(db)
		os.Exit(1)
	}

	l.Info().Msg("server exited")
}
