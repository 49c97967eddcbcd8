package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/flowmesh/streamlog/internal/metrics"
	logpkg "github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/metastore"
	"github.com/flowmesh/streamlog/internal/storage/streams"
	"github.com/rs/zerolog"
)

// Storage represents the complete storage system
type Storage struct {
	config        *Config
	paths         *StoragePaths
	metaStore     *metastore.Store
	scheduler     *logpkg.FsyncScheduler
	streamManager *streams.Manager
	checkpoints   *CheckpointManager
	collector     *metrics.Collector
	metrics       *metrics.StorageMetrics
	log           zerolog.Logger
	mu            sync.RWMutex
	ready         bool
	closed        bool
}

// New creates a storage system in dataDir with the default configuration
func New(dataDir string) (*Storage, error) {
	return NewBuilder().WithDataDir(dataDir).Build()
}

// Start loads every partition of the catalog and starts background fsyncing
func (s *Storage) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}
	if s.closed {
		return fmt.Errorf("storage is closed")
	}

	start := time.Now()
	if err := s.streamManager.Load(); err != nil {
		return fmt.Errorf("failed to load partitions: %w", err)
	}

	s.verifyRecovery()

	if s.scheduler != nil {
		s.scheduler.Start()
	}
	s.checkpoints.Start()

	s.ready = true
	s.log.Info().
		Str("data_dir", s.paths.BaseDir).
		Int("partitions", len(s.streamManager.Partitions())).
		Dur("duration", time.Since(start)).
		Msg("Storage started")

	return nil
}

// verifyRecovery warns about every partition that came back behind the last checkpoint
func (s *Storage) verifyRecovery() {
	checkpoint, err := s.checkpoints.LoadLatestCheckpoint()
	if err != nil {
		if !errors.Is(err, ErrNoCheckpoint) {
			s.log.Warn().Err(err).Msg("Failed to load checkpoint, skipping recovery check")
		}
		return
	}

	for _, gap := range s.checkpoints.VerifyRecovery(checkpoint) {
		s.log.Warn().
			Str("partition", gap.Partition).
			Uint64("checkpoint_offset", gap.CheckpointOffset).
			Uint64("recovered_offset", gap.RecoveredOffset).
			Bool("partition_recovered", gap.PartitionRecovered).
			Msg("Partition recovered behind last checkpoint")
	}
}

// Checkpoints returns the checkpoint manager
func (s *Storage) Checkpoints() *CheckpointManager {
	return s.checkpoints
}

// Ready returns true once Start completed
func (s *Storage) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// MetaStore returns the catalog
func (s *Storage) MetaStore() *metastore.Store {
	return s.metaStore
}

// StreamManager returns the partition manager
func (s *Storage) StreamManager() *streams.Manager {
	return s.streamManager
}

// Collector returns the metrics collector, nil when metrics are disabled
func (s *Storage) Collector() *metrics.Collector {
	return s.collector
}

// Metrics returns the storage metrics, nil when metrics are disabled
func (s *Storage) Metrics() *metrics.StorageMetrics {
	return s.metrics
}

// Paths returns the storage paths
func (s *Storage) Paths() *StoragePaths {
	return s.paths
}

// Config returns the storage configuration
func (s *Storage) Config() *Config {
	return s.config
}

// Close flushes and closes every partition, then the catalog
func (s *Storage) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.log.Info().Msg("Closing storage...")

	var lastErr error

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if err := s.streamManager.FlushAll(true); err != nil {
		s.log.Error().Err(err).Msg("Failed to flush partitions")
		lastErr = err
	}

	// An unstarted storage never loaded its partitions, so there is nothing to record.
	if s.ready {
		if err := s.checkpoints.Stop(); err != nil {
			s.log.Error().Err(err).Msg("Failed to stop checkpoint manager")
			lastErr = err
		}
	}

	if err := s.streamManager.CloseAll(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close partitions")
		lastErr = err
	}

	if err := s.metaStore.Close(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close metadata store")
		lastErr = err
	}

	s.closed = true
	s.ready = false
	s.log.Info().Msg("Storage closed")

	return lastErr
}

// Validate validates the storage system integrity
func (s *Storage) Validate() error {
	if err := validateStorageDirectory(s.paths.BaseDir); err != nil {
		return fmt.Errorf("base directory invalid: %w", err)
	}

	if err := validateStorageDirectory(s.paths.StreamsDir); err != nil {
		return fmt.Errorf("streams directory invalid: %w", err)
	}

	if err := validateStorageDirectory(s.paths.MetadataDir); err != nil {
		return fmt.Errorf("metadata directory invalid: %w", err)
	}

	if err := validateStorageDirectory(s.paths.CheckpointDir); err != nil {
		return fmt.Errorf("checkpoint directory invalid: %w", err)
	}

	if _, err := s.metaStore.GetStreams(); err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	return nil
}

// validateStorageDirectory checks if a directory exists and is accessible
func validateStorageDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}
