package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"fieldnotes/internal/config"
	"fieldnotes/internal/connectivity"
	"fieldnotes/internal/http"
	"fieldnotes/internal/remote"
	"fieldnotes/internal/service"
	"fieldnotes/internal/storage"
	"fieldnotes/internal/sync"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	noteRepo := storage.NewNoteRepo(db)
	notesService := service.NewNotesService(noteRepo)

	// Remote authority and connectivity probe share the base URL
	remoteClient := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
	probe := connectivity.NewHTTPProbe(cfg.RemoteBaseURL, cfg.RemoteTimeout)

	engine := sync.NewEngine(noteRepo, remoteClient, probe)
	slog.Info("Sync engine initialized", "remote", cfg.RemoteBaseURL)

	// Optionally seed an empty store from the remote after startup
	if cfg.BootstrapOnStart {
		go func() {
			imported, err := engine.Bootstrap(context.Background())
			if err != nil {
				slog.Error("Bootstrap completed with errors", "imported", imported, "error", err)
			} else {
				slog.Info("Bootstrap completed", "imported", imported)
			}
		}()
	}

	deps := &http.Deps{
		Notes:  notesService,
		Engine: engine,
		DB:     db,
	}
	router := http.NewRouter(deps)

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
