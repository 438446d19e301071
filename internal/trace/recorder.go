package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kcajmagic/COSC-NACHOS/internal/kthread"
	"github.com/kcajmagic/COSC-NACHOS/pkg/model"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// Recorder collects the thread events of one run in memory. It is a
// kthread.Observer; kernel threads call it while holding the processor, so
// it needs no locking.
type Recorder struct {
	run    model.Run
	events []model.ThreadEvent
}

// NewRecorder starts recording a run of scenario under the named scheduler.
func NewRecorder(scenario, scheduler string, seed uint64) *Recorder {
	return &Recorder{
		run: model.Run{
			ID:        NewRunID(),
			Scenario:  scenario,
			Scheduler: scheduler,
			Seed:      seed,
			State:     model.RunStateRunning,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// ThreadEvent implements kthread.Observer.
func (r *Recorder) ThreadEvent(ev kthread.Event) {
	r.events = append(r.events, model.ThreadEvent{
		Seq:      len(r.events) + 1,
		Tick:     ev.Time,
		ThreadID: int(ev.Thread),
		Thread:   ev.Name,
		Kind:     string(ev.Kind),
	})
}

// Finish moves the run to its terminal state.
func (r *Recorder) Finish(passed bool, detail string, ticks int64, switches uint64) error {
	next := model.RunStateFailed
	if passed {
		next = model.RunStatePassed
	}
	if !r.run.State.CanTransitionTo(next) {
		return &model.InvalidTransitionError{ID: r.run.ID, From: r.run.State, To: next}
	}

	now := time.Now().UTC()
	r.run.State = next
	r.run.Detail = detail
	r.run.Ticks = ticks
	r.run.Switches = switches
	r.run.FinishedAt = &now
	r.run.EventCount = len(r.events)
	return nil
}

// Run returns a copy of the run record.
func (r *Recorder) Run() model.Run {
	run := r.run
	run.EventCount = len(r.events)
	return run
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []model.ThreadEvent {
	return r.events
}

// Save writes the run and its events to st.
func (r *Recorder) Save(ctx context.Context, st Store) error {
	run := r.Run()
	if err := st.CreateRun(ctx, &run); err != nil {
		return err
	}
	if err := st.AppendEvents(ctx, run.ID, r.events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	return nil
}
