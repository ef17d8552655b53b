// Package app wires configuration into a ready pipeline: store, record
// source, endpoint, guard and the event listener.
package app

import (
	"context"
	"fmt"

	"go-workbook-pipeline/internal/config"
	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pipeline"
	"go-workbook-pipeline/internal/pkg/distlock"
	"go-workbook-pipeline/internal/pkg/logger"
	"go-workbook-pipeline/internal/platform"
	"go-workbook-pipeline/internal/remote"
	"go-workbook-pipeline/internal/store"
	"go-workbook-pipeline/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// source is everything the checker and driver read or report through. Jobs
// are created, looked up and reported on the same source.
type source interface {
	pipeline.SheetDirectory
	pipeline.RecordStore
	pipeline.SpaceMetadataStore
	pipeline.CredentialSource
	pipeline.JobReporter
	pipeline.JobLookup
	ListJobs(ctx context.Context, workbookID string) ([]model.Job, error)
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Store     *store.DB
	Source    source
	Checker   *pipeline.Checker
	Driver    *pipeline.Driver
	Listener  *pipeline.Listener
	Validator *pipeline.Validator
	Importer  *pipeline.Importer
	Exports   *utils.OutputManager

	redis *redis.Client
}

// Build opens the store and assembles the pipeline from cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedact(cfg.Logging.Redact)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{Config: cfg, Store: db, Source: db}
	if cfg.Platform.BaseURL != "" {
		a.Source = platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey)
		logger.Info("using hosted platform as record source", "base_url", cfg.Platform.BaseURL)
	}

	endpoint, err := a.buildEndpoint()
	if err != nil {
		db.Close()
		return nil, err
	}

	var rules model.RuleSet
	if cfg.Pipeline.RulesFile != "" {
		rules, err = pipeline.LoadRules(cfg.Pipeline.RulesFile)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	fetcher := remote.NewFetcher()
	if cfg.Storage.S3Enabled {
		fetcher, err = remote.NewS3Fetcher(ctx, cfg.Storage.Region)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	var guard pipeline.SubmissionGuard = pipeline.NewLocalGuard()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		guard = distlock.NewGuard(a.redis, cfg.Redis.LockTTL)
		logger.Info("using redis submission guard", "addr", cfg.Redis.Addr)
	}

	a.Checker = &pipeline.Checker{
		Sheets:      a.Source,
		Records:     a.Source,
		PageSize:    cfg.Pipeline.PageSize,
		Concurrency: cfg.Pipeline.Concurrency,
		AllowEmpty:  cfg.Pipeline.AllowEmpty,
	}
	a.Driver = &pipeline.Driver{
		Checker:       a.Checker,
		Spaces:        a.Source,
		Credentials:   a.Source,
		Endpoint:      endpoint,
		Jobs:          a.Source,
		Guard:         guard,
		SubmitTimeout: cfg.Pipeline.SubmitTimeout,
	}
	a.Validator = &pipeline.Validator{
		Sheets:   db,
		Records:  db,
		Updater:  db,
		Rules:    rules,
		Workers:  cfg.Pipeline.Workers,
		PageSize: cfg.Pipeline.PageSize,
	}
	a.Listener = &pipeline.Listener{
		Checker: a.Checker,
		Driver:  a.Driver,
		Jobs:    a.Source,
	}
	// the local validator only sees local records
	if cfg.Platform.BaseURL == "" {
		a.Listener.Hook = a.Validator
	}
	a.Importer = &pipeline.Importer{Store: db, Fetcher: fetcher}

	logger.Info("pipeline ready",
		"database", cfg.Database.Path,
		"endpoint_mode", cfg.Endpoint.Mode,
		"page_size", cfg.Pipeline.PageSize,
		"concurrency", cfg.Pipeline.Concurrency,
	)
	return a, nil
}

func (a *App) buildEndpoint() (pipeline.SubmissionEndpoint, error) {
	cfg := a.Config.Endpoint
	switch cfg.Mode {
	case "http":
		return pipeline.NewHTTPEndpoint(cfg.URL, a.Config.Pipeline.SubmitTimeout), nil
	case "file":
		fe := pipeline.NewFileEndpoint(cfg.OutputDir, cfg.Format)
		if err := fe.Output.EnsureOutputDirExists(); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		a.Exports = fe.Output
		return fe, nil
	default:
		return nil, fmt.Errorf("unknown endpoint mode %q", cfg.Mode)
	}
}

// Close releases the database and redis connections
func (a *App) Close() error {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err.Error())
		}
	}
	return a.Store.Close()
}
