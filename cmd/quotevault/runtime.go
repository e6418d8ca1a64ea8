package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotevault/internal/adapters/storage/badgerstore"
	"github.com/jsamuelsen/quotevault/internal/app"
	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/pipeline"
	"github.com/jsamuelsen/quotevault/internal/platform/config"
	"github.com/jsamuelsen/quotevault/internal/platform/logging"
	"github.com/jsamuelsen/quotevault/internal/platform/metrics"
)

// runtime is the wiring shared by every command: configuration, the store,
// the application services and the change pipeline.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	db         *badgerstore.DB
	store      *badgerstore.Store
	services   *app.Services
	aggregator *pipeline.AuthorAggregator
	dispatcher *pipeline.Dispatcher
}

// openRuntime loads and validates configuration, then opens the store.
// Logs go to logOut so command output on stdout stays clean.
func openRuntime(opts *rootOptions, logOut io.Writer) (*runtime, error) {
	cfg, err := config.LoadFrom(opts.configDir, opts.profile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewWithWriter(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	}, logOut)
	logging.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(registry)

	db, err := badgerstore.Open(badgerstore.Config{
		Path:           cfg.Store.Path,
		InMemory:       cfg.Store.InMemory,
		SyncWrites:     cfg.Store.SyncWrites,
		GCInterval:     cfg.Store.GCInterval,
		GCDiscardRatio: cfg.Store.GCDiscardRatio,
		EncryptionKey:  []byte(cfg.Store.EncryptionKey),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	store, err := badgerstore.NewStore(badgerstore.StoreConfig{
		DB:        db,
		Retry:     cfg.Retry.Policy(),
		RateLimit: cfg.Store.RateLimit,
		RateBurst: cfg.Store.RateBurst,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	services := app.New(store, app.Options{
		CandidateLimit:     cfg.Detector.CandidateLimit,
		SearchBudget:       cfg.Detector.SearchBudget,
		CascadeConcurrency: cfg.Tags.CascadeConcurrency,
		TagCacheTTL:        cfg.Tags.CacheTTL,
	}, m, logger)

	aggregator := pipeline.NewAuthorAggregator(store, store, nil)

	dispatcher, err := pipeline.New(pipeline.Config{
		Outbox:       store,
		Handlers:     []pipeline.Handler{aggregator, pipeline.NewTagActivity(store)},
		Workers:      cfg.Pipeline.Workers,
		PollInterval: cfg.Pipeline.PollInterval,
		BatchSize:    cfg.Pipeline.BatchSize,
		Retry:        cfg.Pipeline.Policy(cfg.Retry),
		Breaker: pipeline.BreakerConfig{
			MaxFailures: cfg.Pipeline.BreakerFailures,
			Cooldown:    cfg.Pipeline.BreakerCooldown,
		},
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		_ = db.Close()

		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		metrics:    m,
		db:         db,
		store:      store,
		services:   services,
		aggregator: aggregator,
		dispatcher: dispatcher,
	}, nil
}

// Close releases the store and the database.
func (r *runtime) Close() error {
	return errors.Join(r.store.Close(), r.db.Close())
}

// withRuntime opens the runtime for a maintenance command and runs fn as the
// system caller. Logs go to stderr.
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *runtime) error) error {
	rt, err := openRuntime(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			rt.logger.Error("closing store", slog.Any("error", closeErr))
		}
	}()

	return fn(domain.WithCaller(cmd.Context(), domain.SystemCaller), rt)
}
