// Package cli provides the command-line interface for routepipe.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"route-pipeline/internal/config"
	"route-pipeline/internal/orchestrator"
	"route-pipeline/internal/store"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool

	// Shared state built by PersistentPreRunE
	cfg         *config.Config
	logger      *slog.Logger
	closeLogger func() error
	db          *store.Store
	orch        *orchestrator.Orchestrator
)

// errRunFailed makes the process exit non-zero after the report was printed.
var errRunFailed = errors.New("collection run failed")

var rootCmd = &cobra.Command{
	Use:   "routepipe",
	Short: "Route data collection pipeline",
	Long: `Routepipe collects route records from files, HTTP APIs, mailboxes and
manual entry files, normalizes and validates them, drops duplicates and
stores the accepted records in SQLite.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.LogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg.Settings.LogFile, level)

		db, err = store.InitDB(cfg.Settings.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}

		orch, err = orchestrator.New(cfg,
			orchestrator.WithLogger(logger),
			orchestrator.WithPersister(db),
			orchestrator.WithFingerprintStore(db),
			orchestrator.WithRunStore(db),
		)
		if err != nil {
			return fmt.Errorf("prepare collectors: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
}

func shutdown() {
	if db != nil {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
		db = nil
	}
	if closeLogger != nil {
		closeLogger()
		closeLogger = nil
	}
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the root command with explicit arguments.
func ExecuteArgs(args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	// PersistentPostRun is skipped when RunE fails
	shutdown()
	return err
}

func init() {
	defaultConfig := os.Getenv("ROUTEPIPE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config/collectors.json"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "configuration file (env ROUTEPIPE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}
