package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/kcajmagic/COSC-NACHOS/internal/trace"
	"github.com/kcajmagic/COSC-NACHOS/pkg/model"
	"github.com/spf13/cobra"
)

// runSource reads recorded runs from the trace database or the trace API.
type runSource interface {
	ListRuns(opts model.ListOptions) ([]*model.Run, int, error)
	GetRun(id string) (*model.Run, error)
	ListEvents(id string) ([]model.ThreadEvent, error)
}

type storeSource struct {
	ctx context.Context
	st  trace.Store
}

func (s storeSource) ListRuns(opts model.ListOptions) ([]*model.Run, int, error) {
	return s.st.ListRuns(s.ctx, opts)
}

func (s storeSource) GetRun(id string) (*model.Run, error) {
	return s.st.GetRun(s.ctx, id)
}

func (s storeSource) ListEvents(id string) ([]model.ThreadEvent, error) {
	return s.st.ListEvents(s.ctx, id)
}

// openRunSource prefers --server and falls back to the trace database. The
// returned func releases it.
func openRunSource(ctx context.Context) (runSource, func(), error) {
	if client != nil {
		return client, func() {}, nil
	}
	path, err := requireTraceDB()
	if err != nil {
		return nil, nil, err
	}
	st, err := openTraceStore(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return storeSource{ctx: ctx, st: st}, func() { st.Close() }, nil
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded self-test runs",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var scenario, state string
	opts := model.DefaultListOptions()

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Scenario = scenario
			if state != "" {
				s, ok := model.ParseRunState(state)
				if !ok {
					return fmt.Errorf("unknown state %q", state)
				}
				opts.State = s
			}
			opts.Clamp()

			src, release, err := openRunSource(context.Background())
			if err != nil {
				return err
			}
			defer release()

			runs, total, err := src.ListRuns(opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-14s  %-10s  %-7s  %8s  %s\n", "ID", "SCENARIO", "SCHEDULER", "STATE", "TICKS", "CREATED")
			fmt.Fprintf(out, "%-40s  %-14s  %-10s  %-7s  %8s  %s\n", "--", "--------", "---------", "-----", "-----", "-------")
			for _, run := range runs {
				fmt.Fprintf(out, "%-40s  %-14s  %-10s  %-7s  %8d  %s\n",
					run.ID, run.Scenario, run.Scheduler, run.State, run.Ticks, run.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			if opts.Offset+len(runs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "", "Only runs of this scenario")
	cmd.Flags().StringVar(&state, "state", "", "Only runs in this state (running, passed, failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum runs to show (max 100)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Runs to skip")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			src, release, err := openRunSource(context.Background())
			if err != nil {
				return err
			}
			defer release()

			run, err := src.GetRun(id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %s not found", id)
			}

			out := cmd.OutOrStdout()
			printRun(out, run)

			if showEvents {
				events, err := src.ListEvents(id)
				if err != nil {
					return fmt.Errorf("list events: %w", err)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%6s  %8s  %-24s  %s\n", "SEQ", "TICK", "THREAD", "EVENT")
				for _, ev := range events {
					fmt.Fprintf(out, "%6d  %8d  %-24s  %s\n", ev.Seq, ev.Tick, fmt.Sprintf("%s (#%d)", ev.Thread, ev.ThreadID), ev.Kind)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "Also print the thread events")
	return cmd
}

func printRun(out io.Writer, run *model.Run) {
	fmt.Fprintf(out, "Run:       %s\n", run.ID)
	fmt.Fprintf(out, "Scenario:  %s\n", run.Scenario)
	fmt.Fprintf(out, "Scheduler: %s (seed %d)\n", run.Scheduler, run.Seed)
	fmt.Fprintf(out, "State:     %s\n", run.State)
	if run.Detail != "" {
		fmt.Fprintf(out, "Detail:    %s\n", run.Detail)
	}
	fmt.Fprintf(out, "Ticks:     %d\n", run.Ticks)
	fmt.Fprintf(out, "Switches:  %d\n", run.Switches)
	fmt.Fprintf(out, "Events:    %d\n", run.EventCount)
	fmt.Fprintf(out, "Created:   %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:  %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
}
