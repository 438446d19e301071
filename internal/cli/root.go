// Package cli implements the nachos command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kcajmagic/COSC-NACHOS/internal/config"
	"github.com/kcajmagic/COSC-NACHOS/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagServer    string
	flagTraceDB   string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	kcfg   config.KernelConfig
	client *Client
)

// defaultServer returns the trace API URL from NACHOS_SERVER, if set.
func defaultServer() string {
	return os.Getenv("NACHOS_SERVER")
}

// NewRootCmd creates the root cobra command for the nachos CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nachos",
		Short: "nachos: simulated teaching kernel",
		Long: "nachos boots a simulated uniprocessor kernel with priority, lottery or round-robin\n" +
			"scheduling, runs its self-test scenarios, and records their thread traces.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultKernelConfig()
			if flagConfig != "" {
				loaded, err := config.Load(flagConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			if flags.Changed("trace-db") {
				cfg.TraceDB = flagTraceDB
			}
			kcfg = cfg

			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			if flagServer != "" {
				client = NewClient(flagServer, logger)
			} else {
				client = nil
			}
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Kernel config file (YAML)")
	pf.StringVar(&flagServer, "server", defaultServer(), "Trace API URL for the runs commands (or NACHOS_SERVER env)")
	pf.StringVar(&flagTraceDB, "trace-db", "", "SQLite trace database (overrides trace_db)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSelftestCmd(),
		newRunsCmd(),
		newServeCmd(),
		newConfigCmd(),
	)

	return root
}

// requireTraceDB returns the configured trace database path.
func requireTraceDB() (string, error) {
	if kcfg.TraceDB == "" {
		return "", fmt.Errorf("no trace database: pass --trace-db or set trace_db in --config")
	}
	return kcfg.TraceDB, nil
}
