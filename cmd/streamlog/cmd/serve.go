package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/flowmesh/streamlog/internal/metrics"
	"github.com/flowmesh/streamlog/internal/storage"
	"github.com/flowmesh/streamlog/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the storage and run until interrupted",
		Long: `Load every partition of the catalog, start background fsyncing and expose
Prometheus metrics until SIGINT or SIGTERM is received. Buffered messages
are flushed and synced on shutdown.

Examples:
  streamlog serve
  streamlog serve --config streamlog.yaml --log-format text`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

// runServe blocks until ctx is done, then shuts the storage and metrics server down
func runServe(ctx context.Context, opts *options) error {
	log := logger.WithComponent("serve")
	info := version.Get()
	log.Info().Str("version", info.Version).Str("commit", info.ShortCommit()).Msg("Starting streamlog")

	builder := storage.NewBuilder().WithConfig(opts.cfg.StorageConfig())
	var collector *metrics.Collector
	if opts.cfg.Metrics.Enabled {
		collector = metrics.NewRuntimeCollector()
		builder = builder.WithCollector(collector)
	}

	store, err := builder.BuildAndStart(ctx)
	if err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}

	var metricsServer *metrics.Server
	if collector != nil {
		metricsServer = metrics.NewServer(opts.cfg.Metrics.Addr, collector.GetRegistry())
		if err := metricsServer.Start(ctx); err != nil {
			//nolint:errcheck // The start error is reported
			_ = store.Close(context.Background())
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	log.Info().
		Str("data_dir", opts.cfg.Storage.DataDir).
		Int("partitions", len(store.StreamManager().Partitions())).
		Msg("streamlog is ready")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := store.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
		return err
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
