package storage

import (
	"context"
	"fmt"

	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/flowmesh/streamlog/internal/metrics"
	logpkg "github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/metastore"
	"github.com/flowmesh/streamlog/internal/storage/streams"
	"github.com/rs/zerolog"
)

// Builder provides a fluent interface for building Storage instances
type Builder struct {
	config    *Config
	metaStore *metastore.Store
	collector *metrics.Collector
	log       zerolog.Logger
}

// NewBuilder creates a new Storage builder
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    logger.WithComponent("storage.builder"),
	}
}

// WithConfig sets the configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithDataDir sets the data directory (convenience method)
func (b *Builder) WithDataDir(dataDir string) *Builder {
	if b.config == nil {
		b.config = DefaultConfig()
	}
	b.config.DataDir = dataDir
	return b
}

// WithMetaStore sets a custom metadata store (optional, will create default if not set)
func (b *Builder) WithMetaStore(metaStore *metastore.Store) *Builder {
	b.metaStore = metaStore
	return b
}

// WithCollector registers storage metrics with an existing collector instead of a private one
func (b *Builder) WithCollector(collector *metrics.Collector) *Builder {
	b.collector = collector
	return b
}

// Build creates and initializes the Storage instance
func (b *Builder) Build() (*Storage, error) {
	if b.config == nil {
		b.config = DefaultConfig()
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	paths, err := InitDirectories(b.config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize directories: %w", err)
	}

	if b.metaStore == nil {
		metaStore, err := metastore.NewStore(paths.MetadataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata store: %w", err)
		}
		b.metaStore = metaStore
	}

	var storageMetrics *metrics.StorageMetrics
	if b.config.EnableMetrics {
		if b.collector == nil {
			b.collector = metrics.NewCollector()
		}
		storageMetrics = metrics.NewStorageMetrics(b.collector)
	}

	var scheduler *logpkg.FsyncScheduler
	if b.config.FsyncPolicy == string(logpkg.FsyncInterval) {
		scheduler = logpkg.NewFsyncScheduler(b.config.FsyncInterval)
	}

	streamMgr := streams.NewManager(
		b.metaStore,
		paths.StreamsDir,
		b.config.SegmentConfig(),
		scheduler,
		storageMetrics,
	)

	storage := &Storage{
		config:        b.config,
		paths:         paths,
		metaStore:     b.metaStore,
		scheduler:     scheduler,
		streamManager: streamMgr,
		checkpoints:   NewCheckpointManager(streamMgr, paths.CheckpointDir, b.config.CheckpointInterval),
		collector:     b.collector,
		metrics:       storageMetrics,
		log:           logger.WithComponent("storage"),
	}

	b.log.Info().
		Str("data_dir", b.config.DataDir).
		Str("fsync_policy", b.config.FsyncPolicy).
		Uint64("segment_size", b.config.SegmentSize).
		Msg("Storage built successfully")

	return storage, nil
}

// BuildAndStart creates, initializes, and starts the Storage instance
func (b *Builder) BuildAndStart(ctx context.Context) (*Storage, error) {
	storage, err := b.Build()
	if err != nil {
		return nil, err
	}

	if err := storage.Start(ctx); err != nil {
		//nolint:errcheck // The start error is reported
		_ = storage.Close(ctx)
		return nil, fmt.Errorf("failed to start storage: %w", err)
	}

	return storage, nil
}
