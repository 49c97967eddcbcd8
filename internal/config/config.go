package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/flowmesh/streamlog/internal/storage"
	logpkg "github.com/flowmesh/streamlog/internal/storage/log"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "STREAMLOG_"

// Config represents the application configuration
type Config struct {
	// Storage configuration
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	// Data directory path
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// Segment size in bytes before a new segment is started
	SegmentSize uint64 `yaml:"segment_size" env:"SEGMENT_SIZE"`

	// Number of recent messages cached per segment
	MessagesBuffer uint32 `yaml:"messages_buffer" env:"MESSAGES_BUFFER"`

	// Number of unsaved messages that triggers a flush
	MessagesRequiredToSave uint32 `yaml:"messages_required_to_save" env:"MESSAGES_REQUIRED_TO_SAVE"`

	// Time index every Nth message
	TimeIndexInterval uint32 `yaml:"time_index_interval" env:"TIME_INDEX_INTERVAL"`

	// Fsync policy: "always", "interval"
	FsyncPolicy string `yaml:"fsync_policy" env:"FSYNC_POLICY"`

	// Fsync interval (for interval policy)
	FsyncInterval time.Duration `yaml:"fsync_interval" env:"FSYNC_INTERVAL"`

	// Payload compression: "none", "zstd"
	Compression string `yaml:"compression" env:"COMPRESSION"`

	// Checkpoint interval, 0 keeps only the shutdown checkpoint
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" env:"CHECKPOINT_INTERVAL"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `yaml:"level" env:"LEVEL"`

	// Log format: "json", "text"
	Format string `yaml:"format" env:"FORMAT"`

	// Log output: "stdout", "stderr" or a file path
	Output string `yaml:"output" env:"OUTPUT"`

	// Enable log rotation (file output only)
	Rotation bool `yaml:"rotation" env:"ROTATION"`

	// Max log file size in MB
	MaxSize int `yaml:"max_size" env:"MAX_SIZE"`

	// Number of backup files to keep
	MaxBackups int `yaml:"max_backups" env:"MAX_BACKUPS"`

	// Max age in days
	MaxAge int `yaml:"max_age" env:"MAX_AGE"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Metrics server address
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the built-in configuration
func Default() *Config {
	storageDefaults := storage.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			DataDir:                storageDefaults.DataDir,
			SegmentSize:            storageDefaults.SegmentSize,
			MessagesBuffer:         storageDefaults.MessagesBuffer,
			MessagesRequiredToSave: storageDefaults.MessagesRequiredToSave,
			TimeIndexInterval:      storageDefaults.TimeIndexInterval,
			FsyncPolicy:            storageDefaults.FsyncPolicy,
			FsyncInterval:          storageDefaults.FsyncInterval,
			Compression:            storageDefaults.Compression,
			CheckpointInterval:     storageDefaults.CheckpointInterval,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			Rotation:   true,
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load loads configuration from multiple sources, later ones winning:
// 1. Default values
// 2. Configuration file (YAML), when path is not empty
// 3. Environment variables (STREAMLOG_ prefix)
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Normalize paths
	cfg.Storage.DataDir = filepath.Clean(cfg.Storage.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics address cannot be empty when metrics are enabled")
	}

	return c.StorageConfig().Validate()
}

// StorageConfig converts the storage section into the storage system configuration
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		DataDir:                c.Storage.DataDir,
		SegmentSize:            c.Storage.SegmentSize,
		MessagesBuffer:         c.Storage.MessagesBuffer,
		MessagesRequiredToSave: c.Storage.MessagesRequiredToSave,
		TimeIndexInterval:      c.Storage.TimeIndexInterval,
		FsyncPolicy:            strings.ToLower(c.Storage.FsyncPolicy),
		FsyncInterval:          c.Storage.FsyncInterval,
		Compression:            strings.ToLower(c.Storage.Compression),
		CheckpointInterval:     c.Storage.CheckpointInterval,
		EnableMetrics:          c.Metrics.Enabled,
	}
}

// LoggerConfig converts the logging section into the logger configuration
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		Rotation:   c.Logging.Rotation,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}

// SegmentConfig returns the per-segment configuration derived from the storage section
func (c *Config) SegmentConfig() *logpkg.Config {
	return c.StorageConfig().SegmentConfig()
}

// loadFromFile overlays a YAML file onto cfg; keys absent from the file keep their value
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
