package storage

import (
	"time"

	logpkg "github.com/flowmesh/streamlog/internal/storage/log"
)

// Config holds configuration for the storage system
type Config struct {
	// DataDir is the base directory for storage
	DataDir string

	// SegmentSize is the size at which a segment is sealed and a new one is started (bytes)
	SegmentSize uint64

	// MessagesBuffer is the number of recent messages each segment keeps in memory
	MessagesBuffer uint32

	// MessagesRequiredToSave is the number of unsaved messages that triggers a flush
	MessagesRequiredToSave uint32

	// TimeIndexInterval indexes the first message of a segment and every Nth one after it
	TimeIndexInterval uint32

	// FsyncPolicy determines when to sync data to disk ("always", "interval")
	FsyncPolicy string

	// FsyncInterval is the interval for interval-based fsyncing
	FsyncInterval time.Duration

	// Compression is the payload codec of new records ("none", "zstd")
	Compression string

	// CheckpointInterval is how often partition offsets are checkpointed (0 disables periodic checkpoints)
	CheckpointInterval time.Duration

	// EnableMetrics enables metrics collection
	EnableMetrics bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:                "./data",
		SegmentSize:            logpkg.DefaultSegmentSize,
		MessagesBuffer:         logpkg.DefaultMessagesBuffer,
		MessagesRequiredToSave: logpkg.DefaultMessagesRequiredToSave,
		TimeIndexInterval:      logpkg.DefaultTimeIndexInterval,
		FsyncPolicy:            string(logpkg.FsyncInterval),
		FsyncInterval:          time.Second,
		Compression:            string(logpkg.CompressionNone),
		CheckpointInterval:     DefaultCheckpointInterval,
		EnableMetrics:          true,
	}
}

// SegmentConfig converts the storage configuration into the per-segment configuration
func (c *Config) SegmentConfig() *logpkg.Config {
	return &logpkg.Config{
		SizeBytes:              c.SegmentSize,
		MessagesBuffer:         c.MessagesBuffer,
		MessagesRequiredToSave: c.MessagesRequiredToSave,
		TimeIndexInterval:      c.TimeIndexInterval,
		FsyncPolicy:            logpkg.FsyncPolicy(c.FsyncPolicy),
		Compression:            logpkg.Compression(c.Compression),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrInvalidConfig{Field: "DataDir", Reason: "cannot be empty"}
	}
	if c.FsyncPolicy == string(logpkg.FsyncInterval) && c.FsyncInterval <= 0 {
		return ErrInvalidConfig{Field: "FsyncInterval", Reason: "must be greater than zero for interval policy"}
	}
	if c.CheckpointInterval < 0 {
		return ErrInvalidConfig{Field: "CheckpointInterval", Reason: "cannot be negative"}
	}
	return c.SegmentConfig().Validate()
}

// ErrInvalidConfig indicates an invalid configuration
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return "invalid config: " + e.Field + ": " + e.Reason
}
