package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotevault/internal/adapters/http"
	"github.com/jsamuelsen/quotevault/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotevault/internal/platform/telemetry"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the change pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// runServe blocks until ctx is canceled or the server fails, then shuts down
// the HTTP server before the pipeline so accepted writes reach the outbox first.
func runServe(ctx context.Context, opts *rootOptions) error {
	rt, err := openRuntime(opts, os.Stdout)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			rt.logger.Error("closing store", slog.Any("error", closeErr))
		}
	}()

	cfg, logger := rt.cfg, rt.logger

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("in_memory", cfg.Store.InMemory),
		slog.Bool("encrypted", cfg.Store.EncryptionKey != ""),
	)

	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telProvider.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	healthRegistry := ports.NewHealthRegistry()
	if err := healthRegistry.Register(rt.store); err != nil {
		return fmt.Errorf("registering store health check: %w", err)
	}

	if cfg.Pipeline.Enabled {
		if err := healthRegistry.Register(rt.dispatcher, ports.NonCritical()); err != nil {
			return fmt.Errorf("registering pipeline health check: %w", err)
		}

		// Workers outlive the signal; Shutdown drains them.
		if err := rt.dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("starting pipeline: %w", err)
		}
	} else {
		logger.Warn("change pipeline disabled; author aggregates will not update")
	}

	buildInfo := handlers.NewBuildInfo(Version, Commit, BuildTime)

	server := http.New(&cfg.Server, logger)
	http.SetupRouter(server.Engine(), http.NewDefaultRouterConfig(
		logger,
		cfg,
		handlers.NewHealthHandler(healthRegistry, rt.registry, buildInfo),
		rt.services,
	))

	serverErr := server.Start()

	return waitForShutdown(ctx, rt, server, serverErr)
}

// waitForShutdown blocks until ctx is canceled or the server fails, then stops
// the server and the pipeline within their configured timeouts.
func waitForShutdown(ctx context.Context, rt *runtime, server *http.Server, serverErr <-chan error) error {
	logger := rt.logger

	var runErr error

	select {
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	base := context.WithoutCancel(ctx)

	serverCtx, cancel := context.WithTimeout(base, rt.cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("initiating graceful shutdown", slog.Duration("timeout", rt.cfg.Server.ShutdownTimeout))

	if err := server.Shutdown(serverCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown: %w", err)
	}

	if rt.cfg.Pipeline.Enabled {
		pipelineCtx, cancelPipeline := context.WithTimeout(base, rt.cfg.Pipeline.ShutdownTimeout)
		defer cancelPipeline()

		if err := rt.dispatcher.Shutdown(pipelineCtx); err != nil {
			logger.Warn("pipeline did not drain before timeout; pending events stay in the outbox",
				slog.Any("error", err),
			)
		}

		stats := rt.dispatcher.Stats()
		logger.Info("pipeline stopped",
			slog.Uint64("processed", stats.Processed),
			slog.Uint64("retried", stats.Retried),
			slog.Uint64("dead_lettered", stats.DeadLettered),
		)
	}

	logger.Info("shutdown complete")

	return runErr
}
