// Package cli implements the depotdump command-line interface.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmcdole/depotdump/internal/config"
	"github.com/mmcdole/depotdump/internal/log"
	"github.com/mmcdole/depotdump/internal/steam"
)

// App carries the state shared by every command. Fields set before
// NewRootCmd are inputs; the rest are filled in by the persistent pre-run.
type App struct {
	Version  string
	Registry *steam.Registry
	DataDir  string

	configPath   string
	logLevel     string
	strictConfig bool

	store     *config.Store
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// Execute runs the root command against the process streams.
func Execute(version string) error {
	app := &App{
		Version:  version,
		Registry: steam.DefaultRegistry,
		DataDir:  config.DefaultDataDir(),
	}
	defer app.Close()
	return NewRootCmd(app).Execute()
}

// NewRootCmd builds the command tree bound to app.
func NewRootCmd(app *App) *cobra.Command {
	if app.Registry == nil {
		app.Registry = steam.DefaultRegistry
	}

	root := &cobra.Command{
		Use:   "depotdump",
		Short: "Dump Steam depot keys and manifests for a set of apps",
		Long: `depotdump keeps a list of Steam app IDs, dumps the depot keys and
manifests of every app that is not excluded, and records a result tree per run.

Result files:
  apps.txt   appId;appName
  keys.txt   depotId;DEPOTKEYHEX`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "override the configured log level for this run")
	root.PersistentFlags().BoolVar(&app.strictConfig, "strict-config", false, "fail instead of falling back to defaults when the config file is unusable")

	root.AddCommand(newConfigCmd(app))
	root.AddCommand(newAppsCmd(app))
	root.AddCommand(newDumpCmd(app))
	root.AddCommand(newReportCmd(app))
	root.AddCommand(newHistoryCmd(app))
	return root
}

// setup loads the config record and opens the log file
func (app *App) setup() error {
	opts := []config.StoreOption{}
	if app.strictConfig {
		opts = append(opts, config.WithCorruptPolicy(config.FailOnCorrupt))
	}
	app.store = config.NewStore(app.configPath, opts...)

	cfg, err := app.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg

	// The override applies to this process only and is never saved
	logging := cfg.Logging
	if app.logLevel != "" {
		lvl, err := config.ParseLogLevel(app.logLevel)
		if err != nil {
			return err
		}
		logging.Level = lvl
	}

	logger, closer, err := log.SetupLogger(&logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		fmt.Fprintf(os.Stderr, "Warning: %v; logging disabled\n", err)
		logger = log.NullLogger()
	}
	app.logger = logger
	app.logCloser = closer
	slog.SetDefault(logger)
	app.store = config.NewStore(app.store.Path(), append(opts, config.WithLogger(logger))...)

	logger.Info("starting depotdump", "version", app.Version, "config", app.store.Path())
	return nil
}

// Close releases the log file
func (app *App) Close() error {
	if app.logCloser == nil {
		return nil
	}
	err := app.logCloser.Close()
	app.logCloser = nil
	return err
}

func (app *App) save() error {
	if err := app.store.Save(app.cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
