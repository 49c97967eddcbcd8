package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/config"
	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/flowmesh/streamlog/internal/storage"
)

// options holds the global flags shared by every subcommand
type options struct {
	configPath string
	dataDir    string
	logLevel   string
	logFormat  string
	output     string

	cfg *config.Config
}

// Execute runs the root command.
func Execute() error {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "streamlog",
		Short: "Segment-based partition log storage",
		Long: `streamlog stores append-only message logs organized as streams, topics
and partitions. Every partition is a chain of segment files with an offset
index and a time index.

Use "streamlog [command] --help" for more information about a command.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.initialize(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to a YAML configuration file")
	root.PersistentFlags().StringVarP(&opts.dataDir, "data-dir", "d", "",
		"Data directory (env: STREAMLOG_STORAGE_DATA_DIR)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "",
		"Log format: json, text")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", string(outputTable),
		"Output format: table, json, yaml")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newStreamCmd(opts))
	root.AddCommand(newTopicCmd(opts))
	root.AddCommand(newProduceCmd(opts))
	root.AddCommand(newConsumeCmd(opts))
	root.AddCommand(newSegmentCmd(opts))
	root.AddCommand(newVersionCmd(opts))

	return root
}

// initialize loads the configuration, applies flag overrides and sets up logging.
// Only serve keeps logging on stdout; the other commands print results there.
func (o *options) initialize(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	if _, err := parseOutputFormat(o.output); err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if o.dataDir != "" {
		cfg.Storage.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if cmd.Name() != "serve" && cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	o.cfg = cfg
	return nil
}

// openStorage builds and starts the storage for a one-shot command
func (o *options) openStorage(ctx context.Context) (*storage.Storage, error) {
	storageConfig := o.cfg.StorageConfig()
	storageConfig.EnableMetrics = false

	return storage.NewBuilder().
		WithConfig(storageConfig).
		BuildAndStart(ctx)
}

// withStorage runs fn against a started storage and always closes it afterwards
func (o *options) withStorage(cmd *cobra.Command, fn func(*storage.Storage) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := o.openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(store)
}

func (o *options) formatter(cmd *cobra.Command) *formatter {
	format, err := parseOutputFormat(o.output)
	if err != nil {
		format = outputTable
	}
	return newFormatter(format, cmd.OutOrStdout())
}
