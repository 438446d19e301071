package kthread

import (
	"fmt"

	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
)

// Status is the lifecycle state of a thread.
type Status int

const (
	StatusNew Status = iota
	StatusReady
	StatusRunning
	StatusBlocked
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Thread is a kernel thread. Its body runs on its own goroutine, but only
// while the thread holds the processor.
type Thread struct {
	sys       *System
	id        sched.ThreadID
	name      string
	status    Status
	target    func()
	permit    chan struct{}
	joinQueue *sched.Queue
}

// ID returns the thread's identifier.
func (t *Thread) ID() sched.ThreadID {
	return t.id
}

// Name returns the thread's name.
func (t *Thread) Name() string {
	return t.name
}

// Status returns the thread's lifecycle state.
func (t *Thread) Status() Status {
	return t.status
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s (#%d)", t.name, t.id)
}

// Fork makes a new thread ready to run. Its body starts the first time the
// scheduler picks it.
func (t *Thread) Fork() {
	machine.Assert(t.status == StatusNew, "fork of %s in status %s", t, t.status)
	machine.Assert(t.target != nil, "fork of %s without a body", t)

	irq := t.sys.irq
	old := irq.Disable()
	t.sys.emit(t, EventFork)
	go t.start()
	t.Ready()
	irq.Restore(old)
}

// Ready moves the thread onto the ready queue. Interrupts must be disabled.
func (t *Thread) Ready() {
	machine.Assert(t.sys.irq.Disabled(), "ready with interrupts enabled")
	machine.Assert(t.status != StatusReady, "%s is already ready", t)
	machine.Assert(t.status != StatusFinished, "%s has finished", t)

	t.status = StatusReady
	t.sys.readyQueue.WaitForAccess(t.id)
	t.sys.emit(t, EventReady)
}

// Join blocks the current thread until t finishes. Returns immediately if
// it already has.
func (t *Thread) Join() {
	cur := t.sys.current
	machine.Assert(t != cur, "%s cannot join itself", t)

	irq := t.sys.irq
	old := irq.Disable()
	if t.status != StatusFinished {
		t.joinQueue.WaitForAccess(cur.id)
		t.sys.Sleep()
	}
	irq.Restore(old)
}

// Priority returns the thread's base priority.
func (t *Thread) Priority() int64 {
	old := t.sys.irq.Disable()
	defer t.sys.irq.Restore(old)
	return t.sys.scheduler.Priority(t.id)
}

// SetPriority sets the thread's base priority.
func (t *Thread) SetPriority(priority int64) {
	old := t.sys.irq.Disable()
	defer t.sys.irq.Restore(old)
	t.sys.scheduler.SetPriority(t.id, priority)
}

// EffectivePriority returns the thread's priority including donations.
func (t *Thread) EffectivePriority() int64 {
	old := t.sys.irq.Disable()
	defer t.sys.irq.Restore(old)
	return t.sys.scheduler.EffectivePriority(t.id)
}

// start is the goroutine body. It waits for the processor before running
// the thread's target.
func (t *Thread) start() {
	defer func() {
		if r := recover(); r != nil {
			t.sys.crash(r)
		}
	}()

	<-t.permit
	t.sys.begin()
	t.target()
	t.sys.finish()
}
