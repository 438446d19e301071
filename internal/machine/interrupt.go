package machine

import (
	"log/slog"
	"sort"
)

// pendingInterrupt is a device interrupt scheduled for a future tick.
type pendingInterrupt struct {
	time    int64
	seq     uint64
	kind    string
	handler func()
}

// Interrupt is the interrupt controller of the simulated uniprocessor.
//
// It owns the simulated clock. Time only moves forward when interrupts are
// re-enabled (one kernel tick) or when the processor idles, which jumps the
// clock to the next pending interrupt. Disabling interrupts is the only
// mutual-exclusion mechanism the kernel has.
type Interrupt struct {
	enabled    bool
	inHandler  bool
	now        int64
	kernelTick int64
	seq        uint64
	pending    []pendingInterrupt
	logger     *slog.Logger
}

// NewInterrupt creates a controller with interrupts disabled at time zero.
func NewInterrupt(kernelTick int64, logger *slog.Logger) *Interrupt {
	if kernelTick <= 0 {
		kernelTick = DefaultKernelTick
	}
	return &Interrupt{
		kernelTick: kernelTick,
		logger:     logger.With("component", "interrupt"),
	}
}

// Enable turns interrupts on.
func (i *Interrupt) Enable() {
	i.SetStatus(true)
}

// Disable turns interrupts off and returns the prior status, to be handed
// back to Restore.
func (i *Interrupt) Disable() bool {
	return i.SetStatus(false)
}

// Restore sets the interrupt status returned by an earlier Disable.
func (i *Interrupt) Restore(status bool) {
	i.SetStatus(status)
}

// SetStatus sets the interrupt status and returns the prior one. Moving from
// disabled to enabled advances the clock by one kernel tick and services any
// interrupt that became due.
func (i *Interrupt) SetStatus(status bool) bool {
	old := i.enabled
	i.enabled = status
	if !old && status {
		i.tick()
	}
	return old
}

// Enabled reports whether interrupts are on.
func (i *Interrupt) Enabled() bool {
	return i.enabled
}

// Disabled reports whether interrupts are off.
func (i *Interrupt) Disabled() bool {
	return !i.enabled
}

// Time returns the current simulated time in ticks.
func (i *Interrupt) Time() int64 {
	return i.now
}

// Pending returns the number of scheduled interrupts.
func (i *Interrupt) Pending() int {
	return len(i.pending)
}

// Schedule arranges for handler to run delay ticks from now. Interrupts with
// the same due time run in the order they were scheduled.
func (i *Interrupt) Schedule(delay int64, kind string, handler func()) {
	Assert(delay > 0, "interrupt %q scheduled with non-positive delay %d", kind, delay)
	i.seq++
	p := pendingInterrupt{time: i.now + delay, seq: i.seq, kind: kind, handler: handler}
	at := sort.Search(len(i.pending), func(n int) bool {
		return i.pending[n].time > p.time
	})
	i.pending = append(i.pending, pendingInterrupt{})
	copy(i.pending[at+1:], i.pending[at:])
	i.pending[at] = p
}

// Idle is called when no thread is ready to run. It advances the clock to
// the earliest pending interrupt and services it. Returns false if nothing
// is pending, in which case the processor would idle forever.
func (i *Interrupt) Idle() bool {
	Assert(i.Disabled(), "idle with interrupts enabled")
	if len(i.pending) == 0 {
		return false
	}
	if next := i.pending[0].time; next > i.now {
		i.logger.Debug("idle", "from", i.now, "to", next)
		i.now = next
	}
	i.checkIfDue()
	return true
}

func (i *Interrupt) tick() {
	i.now += i.kernelTick
	i.checkIfDue()
}

// checkIfDue runs every interrupt whose time has come, with interrupts
// disabled for the duration of each handler.
func (i *Interrupt) checkIfDue() {
	if i.inHandler {
		return
	}
	old := i.enabled
	i.enabled = false
	i.inHandler = true
	for len(i.pending) > 0 && i.pending[0].time <= i.now {
		p := i.pending[0]
		i.pending = i.pending[1:]
		p.handler()
	}
	i.inHandler = false
	i.enabled = old
}
