// Package app wires configuration into the services shared by the binaries.
package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/timmy/memetag/internal/api/handler"
	"github.com/timmy/memetag/internal/config"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/ocr"
	"github.com/timmy/memetag/internal/repository"
	"github.com/timmy/memetag/internal/service"
	"github.com/timmy/memetag/internal/signing"
	"github.com/timmy/memetag/internal/storage"
)

// App holds the constructed dependency graph.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Stores *storage.Stores
	Signer *signing.Signer

	Memes  *repository.MemeRepository
	Jobs   *repository.JobRepository
	Ingest *service.IngestService
	Query  *service.QueryService
	Assets *service.AssetService
	Runner *service.JobRunner
}

// New builds every component from cfg. Callers must Close the result.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{Config: cfg, Logger: log, DB: db}
	if err := a.build(ctx); err != nil {
		_ = repository.Close(db)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	stores, err := storage.NewStores(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	signer, err := signing.NewSigner(cfg.Signing.Secret, signing.StoreResolver{Stores: stores})
	if err != nil {
		return err
	}
	extractor, err := ocr.New(&cfg.OCR)
	if err != nil {
		return fmt.Errorf("failed to initialize text extractor: %w", err)
	}

	a.Stores = stores
	a.Signer = signer
	a.Memes = repository.NewMemeRepository(a.DB)
	a.Jobs = repository.NewJobRepository(a.DB)
	a.Ingest = service.NewIngestService(
		a.Memes,
		stores,
		extractor,
		service.NewThumbnailer(cfg.Thumbnail.MaxWidth, cfg.Thumbnail.MaxHeight, cfg.Thumbnail.Quality),
		signer,
		a.Logger,
		&service.IngestConfig{
			Workers:    cfg.Ingest.Workers,
			ConfirmTTL: cfg.Signing.ConfirmTTL,
		},
	)
	a.Query = service.NewQueryService(a.Memes, signer, a.Logger, &service.QueryConfig{
		PublicURL:  cfg.Server.PublicURL,
		URLTTL:     cfg.Signing.URLTTL,
		MaxResults: cfg.Query.MaxResults,
		MaxLength:  cfg.Query.MaxLength,
	})
	a.Assets = service.NewAssetService(signer, stores)
	a.Runner = service.NewJobRunner(a.Jobs, a.Logger)

	a.Logger.WithFields(logger.Fields{
		"storage":  cfg.Storage.Type,
		"database": cfg.Database.Driver,
		"ocr":      cfg.OCR.Provider,
	}).Info("Components initialized")
	return nil
}

// RecoverJobs marks jobs left running by a previous process as failed.
func (a *App) RecoverJobs(ctx context.Context) {
	n, err := a.Jobs.MarkInterrupted(ctx)
	if err != nil {
		a.Logger.WithError(err).Warn("Failed to mark interrupted jobs")
		return
	}
	if n > 0 {
		a.Logger.WithField(logger.FieldCount, n).Warn("Marked interrupted maintenance jobs as failed")
	}
}

// ReadinessChecks probes the database and both stores.
func (a *App) ReadinessChecks() []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{{
		Name:  "database",
		Check: func(ctx context.Context) error { return repository.Ping(ctx, a.DB) },
	}}
	for name, store := range map[string]storage.AssetStore{"memes": a.Stores.Memes, "thumbnails": a.Stores.Thumbnails} {
		if w, ok := store.(storage.Writable); ok {
			checks = append(checks, handler.ReadinessCheck{Name: name, Check: w.IsWritable})
		}
	}
	return checks
}

// Close releases the database connection.
func (a *App) Close() error {
	return repository.Close(a.DB)
}
