// Package cli implements the schedtrace command-line interface using Cobra.
// It runs instrumented scheduler workloads and manages the traces they
// produce.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/schedtrace/internal/config"
	"github.com/majorcontext/schedtrace/internal/log"
	"github.com/majorcontext/schedtrace/internal/ui"
)

var (
	verbose bool
	jsonOut bool
	workers int
	dbPath  string

	// cfg is loaded before any command runs and already has the
	// persistent flag overrides applied.
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "schedtrace",
	Short: "Trace task lifecycles of a cooperative scheduler",
	Long: `schedtrace runs message-passing workloads on an M:N green-thread
scheduler with every task instrumented, and records each spawn, yield,
deschedule, wakeup and death with its task, creator and worker thread.

Traces are kept in a local SQLite database and can be checked, exported
as JSON, summarised as Prometheus metrics or sent to an OpenTelemetry
collector.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      config.DebugDir(),
			RetentionDays: cfg.Debug.RetentionDays,
			Stderr:        cmd.ErrOrStderr(),
		}); err != nil {
			// Fall back to the default logger.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}

		if cmd.Flags().Changed("workers") {
			cfg.Pool.Workers = workers
		}
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		ui.Error(err.Error())
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "worker threads (env: SCHEDTRACE_WORKERS)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "trace database path (env: SCHEDTRACE_DB)")
}
