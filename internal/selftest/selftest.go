// Package selftest runs kernel self-test scenarios, each on a freshly
// booted kernel, and optionally records them to a trace store.
package selftest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kcajmagic/COSC-NACHOS/internal/config"
	"github.com/kcajmagic/COSC-NACHOS/internal/kernel"
	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/kcajmagic/COSC-NACHOS/internal/trace"
)

// Scenario is one named self-test. Run executes on the kernel's main
// thread and reports a failed check as an error.
type Scenario struct {
	Name        string
	Description string
	// Scheduler pins the policy the scenario needs. Empty means the
	// configured one.
	Scheduler string
	Run       func(k *kernel.Kernel) error
}

// Result is the outcome of one scenario.
type Result struct {
	Name      string `json:"name"`
	Scheduler string `json:"scheduler"`
	RunID     string `json:"run_id"`
	Passed    bool   `json:"passed"`
	Detail    string `json:"detail,omitempty"`
	Ticks     int64  `json:"ticks"`
	Switches  uint64 `json:"switches"`
}

// Scenarios returns every scenario in run order.
func Scenarios() []Scenario {
	return []Scenario{
		alarmScenario(),
		conditionScenario(),
		communicatorScenario(),
		priorityScenario(),
		lotteryScenario(),
	}
}

// Names returns the scenario names in run order.
func Names() []string {
	var names []string
	for _, sc := range Scenarios() {
		names = append(names, sc.Name)
	}
	return names
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, sc := range Scenarios() {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// ErrUnknownScenario is returned for a scenario name that does not exist.
var ErrUnknownScenario = errors.New("unknown scenario")

// Runner executes scenarios.
type Runner struct {
	cfg    config.KernelConfig
	store  trace.Store
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore saves every run and its thread events to st.
func WithStore(st trace.Store) Option {
	return func(r *Runner) { r.store = st }
}

// NewRunner creates a runner that boots kernels from cfg.
func NewRunner(cfg config.KernelConfig, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the named scenarios, or all of them when names is empty.
// A failing scenario does not stop the others; the returned error covers
// unknown names and trace store failures only.
func (r *Runner) Run(ctx context.Context, names ...string) ([]Result, error) {
	if len(names) == 0 {
		names = Names()
	}

	var selected []Scenario
	for _, name := range names {
		sc, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownScenario, name, Names())
		}
		selected = append(selected, sc)
	}

	var results []Result
	for _, sc := range selected {
		res, err := r.RunScenario(ctx, sc)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunScenario boots a kernel for sc on a fresh goroutine and runs it to
// completion. An assertion failure inside the kernel fails the scenario;
// the kernel it happened on is abandoned.
func (r *Runner) RunScenario(ctx context.Context, sc Scenario) (Result, error) {
	cfg := r.cfg
	if sc.Scheduler != "" {
		cfg.Scheduler = sc.Scheduler
	}
	rec := trace.NewRecorder(sc.Name, cfg.Scheduler, cfg.Seed)
	res := Result{
		Name:      sc.Name,
		Scheduler: cfg.Scheduler,
		RunID:     rec.Run().ID,
	}
	logger := r.logger.With("component", "selftest", "scenario", sc.Name, "run_id", res.RunID)

	done := make(chan struct{})
	go func() {
		defer close(done)

		var k *kernel.Kernel
		defer func() {
			if k != nil {
				res.Ticks = k.Time()
				res.Switches = k.Threads.Switches()
			}
			if p := recover(); p != nil {
				var ae *machine.AssertionError
				err, ok := p.(error)
				if !ok || !errors.As(err, &ae) {
					panic(p)
				}
				res.Passed = false
				res.Detail = ae.Error()
			}
		}()

		var err error
		k, err = kernel.New(cfg, r.logger, kernel.WithObserver(rec))
		if err != nil {
			res.Detail = err.Error()
			return
		}
		if err := sc.Run(k); err != nil {
			res.Detail = err.Error()
			return
		}
		res.Passed = true
	}()
	<-done

	if res.Passed {
		logger.Info("scenario passed", "ticks", res.Ticks, "switches", res.Switches)
	} else {
		logger.Error("scenario failed", "detail", res.Detail, "ticks", res.Ticks)
	}

	if err := rec.Finish(res.Passed, res.Detail, res.Ticks, res.Switches); err != nil {
		return res, err
	}
	if r.store != nil {
		if err := rec.Save(ctx, r.store); err != nil {
			return res, fmt.Errorf("save run %s: %w", res.RunID, err)
		}
	}
	return res, nil
}

// Failed returns the names of the failed results.
func Failed(results []Result) []string {
	var names []string
	for _, res := range results {
		if !res.Passed {
			names = append(names, res.Name)
		}
	}
	return names
}
