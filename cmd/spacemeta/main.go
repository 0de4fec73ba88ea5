// Package main implements the spacemeta command: schema administration,
// filter resolution, snapshots and the long-running serve mode.
package main

import (
	"fmt"
	"os"

	"github.com/arkilian/spacemeta/internal/catalog"
	"github.com/arkilian/spacemeta/internal/config"
	"github.com/arkilian/spacemeta/internal/logging"
	"github.com/arkilian/spacemeta/internal/notify"
	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "unknown"
)

// env is what every schema command works against.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	catalog *catalog.SQLiteCatalog
	schema  *schema.Schema
	changes *notify.Notifier
}

func (e *env) Close() error {
	err := e.catalog.Close()
	_ = e.logger.Sync()
	return err
}

var (
	configFile string
	dataDir    string
	logLevel   string
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spacemeta",
		Short:         "Schema registry and index resolver for tuple spaces",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to configuration file (YAML or JSON)")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "base directory for all data files")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newSpaceCmd(),
		newPropertyCmd(),
		newIndexCmd(),
		newResolveCmd(),
		newOnceCmd(),
		newSnapshotCmd(),
		newAdviseCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads configuration from file and environment; flags win.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, ".env")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.CatalogPath = ""
		if cfg.Snapshot.Storage == "local" {
			cfg.Snapshot.Path = ""
		}
		cfg.Resolve()
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	c, err := catalog.NewCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("catalog opened", zap.String("path", c.Path()))

	changes := notify.NewNotifier(64)
	return &env{
		cfg:     cfg,
		logger:  logger,
		catalog: c,
		schema:  schema.New(c, schema.WithLogger(logger), schema.WithNotifier(changes)),
		changes: changes,
	}, nil
}

// run opens the catalog for the duration of fn.
func run(fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd, e, args)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spacemeta version %s (commit: %s)\n", version, commit)
		},
	}
}
