package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
	"github.com/kcajmagic/COSC-NACHOS/internal/selftest"
	"github.com/kcajmagic/COSC-NACHOS/internal/trace"
	"github.com/spf13/cobra"
)

func newSelftestCmd() *cobra.Command {
	var scheduler string
	var seed uint64

	cmd := &cobra.Command{
		Use:   "selftest [" + strings.Join(selftest.Names(), "|") + "]...",
		Short: "Run kernel self-test scenarios",
		Long: "Boots a fresh kernel for each scenario and checks its behavior.\n" +
			"With no arguments every scenario runs. The priority and lottery scenarios\n" +
			"always use their own scheduler; the others use --scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := kcfg
			if cmd.Flags().Changed("scheduler") {
				if !sched.Known(scheduler) {
					return fmt.Errorf("unknown scheduler %q", scheduler)
				}
				cfg.Scheduler = scheduler
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			var opts []selftest.Option
			if cfg.TraceDB != "" {
				st, err := openTraceStore(ctx, cfg.TraceDB)
				if err != nil {
					return err
				}
				defer st.Close()
				opts = append(opts, selftest.WithStore(st))
			}

			results, err := selftest.NewRunner(cfg, logger, opts...).Run(ctx, args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-14s  %-10s  %-6s  %8s  %8s  %s\n", "SCENARIO", "SCHEDULER", "RESULT", "TICKS", "SWITCHES", "RUN")
			for _, res := range results {
				outcome := "PASS"
				if !res.Passed {
					outcome = "FAIL"
				}
				fmt.Fprintf(out, "%-14s  %-10s  %-6s  %8d  %8d  %s\n", res.Name, res.Scheduler, outcome, res.Ticks, res.Switches, res.RunID)
				if res.Detail != "" {
					fmt.Fprintf(out, "    %s\n", res.Detail)
				}
			}

			if failed := selftest.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d scenarios failed: %s", len(failed), len(results), strings.Join(failed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scheduler, "scheduler", "", "Scheduler policy (priority, lottery, roundrobin)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Lottery random seed")
	return cmd
}

// openTraceStore opens and migrates the trace database at path.
func openTraceStore(ctx context.Context, path string) (*trace.SQLiteStore, error) {
	st, err := trace.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate trace database: %w", err)
	}
	return st, nil
}
