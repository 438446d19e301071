// Package kthread provides cooperative kernel threads for a simulated
// uniprocessor.
//
// Every thread runs on its own goroutine, but a thread only executes while it
// holds the processor. Handing the processor to another thread sends on that
// thread's permit channel and then blocks on the caller's own permit, so at
// most one thread goroutine is ever running kernel code. The ready queue is a
// queue from the configured scheduler, so the scheduling policy decides who
// runs next.
package kthread

import (
	"log/slog"

	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
)

// EventKind names a thread lifecycle transition.
type EventKind string

const (
	EventFork   EventKind = "fork"
	EventReady  EventKind = "ready"
	EventRun    EventKind = "run"
	EventBlock  EventKind = "block"
	EventFinish EventKind = "finish"
)

// Event is a thread lifecycle transition at a simulated time.
type Event struct {
	Time   int64
	Thread sched.ThreadID
	Name   string
	Kind   EventKind
}

// Observer receives thread lifecycle events. Observers run on the kernel's
// processor with interrupts disabled and must not block.
type Observer interface {
	ThreadEvent(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// ThreadEvent calls f(ev).
func (f ObserverFunc) ThreadEvent(ev Event) { f(ev) }

// System is the thread context of one kernel: the running thread, the ready
// queue and the thread table.
type System struct {
	irq         *machine.Interrupt
	scheduler   *sched.Scheduler
	readyQueue  *sched.Queue
	main        *Thread
	current     *Thread
	threads     map[sched.ThreadID]*Thread
	nextID      sched.ThreadID
	wakeSources []func() bool
	observers   []Observer
	switches    uint64
	fault       any
	logger      *slog.Logger
}

// NewSystem creates a thread system and adopts the calling goroutine as its
// running main thread. All later calls must come from whichever thread
// goroutine currently holds the processor.
func NewSystem(irq *machine.Interrupt, scheduler *sched.Scheduler, logger *slog.Logger) *System {
	s := &System{
		irq:       irq,
		scheduler: scheduler,
		threads:   make(map[sched.ThreadID]*Thread),
		logger:    logger.With("component", "kthread"),
	}
	s.readyQueue = scheduler.NewThreadQueue(false)

	main := s.NewThread("main", nil)
	main.status = StatusRunning
	s.main = main
	s.current = main
	s.readyQueue.Acquire(main.id)

	irq.Enable()
	return s
}

// NewThread creates a thread that will run fn once forked.
func (s *System) NewThread(name string, fn func()) *Thread {
	s.nextID++
	t := &Thread{
		sys:       s,
		id:        s.nextID,
		name:      name,
		status:    StatusNew,
		target:    fn,
		permit:    make(chan struct{}, 1),
		joinQueue: s.scheduler.NewThreadQueue(false),
	}
	s.threads[t.id] = t
	return t
}

// Fork creates and forks a thread in one step.
func (s *System) Fork(name string, fn func()) *Thread {
	t := s.NewThread(name, fn)
	t.Fork()
	return t
}

// Current returns the thread holding the processor.
func (s *System) Current() *Thread {
	return s.current
}

// Main returns the thread adopted from the creating goroutine.
func (s *System) Main() *Thread {
	return s.main
}

// Thread looks up a live thread by id.
func (s *System) Thread(id sched.ThreadID) *Thread {
	return s.threads[id]
}

// Scheduler returns the scheduler behind the ready queue.
func (s *System) Scheduler() *sched.Scheduler {
	return s.scheduler
}

// Interrupt returns the interrupt controller.
func (s *System) Interrupt() *machine.Interrupt {
	return s.irq
}

// ReadyCount returns the number of threads waiting for the processor.
func (s *System) ReadyCount() int {
	return s.readyQueue.Len()
}

// Switches returns the number of times the processor changed hands.
func (s *System) Switches() uint64 {
	return s.switches
}

// AddWakeSource registers a probe reporting whether some blocked thread will
// eventually be woken by an interrupt. When nothing is runnable and no probe
// reports pending work, the system is deadlocked.
func (s *System) AddWakeSource(pending func() bool) {
	s.wakeSources = append(s.wakeSources, pending)
}

// AddObserver registers a lifecycle observer.
func (s *System) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Yield gives up the processor. The current thread goes back on the ready
// queue and runs again when the scheduler picks it.
func (s *System) Yield() {
	cur := s.current
	machine.Assert(cur.status == StatusRunning, "yield from %s in status %s", cur, cur.status)

	old := s.irq.Disable()
	cur.Ready()
	s.runNextThread()
	s.irq.Restore(old)
}

// Sleep blocks the current thread. Something must already have recorded how
// it will be woken. Interrupts must be disabled.
func (s *System) Sleep() {
	machine.Assert(s.irq.Disabled(), "sleep with interrupts enabled")

	cur := s.current
	if cur.status != StatusFinished {
		cur.status = StatusBlocked
		s.emit(cur, EventBlock)
	}
	s.runNextThread()
}

// IncreasePriority raises the current thread's priority by one.
func (s *System) IncreasePriority() bool {
	old := s.irq.Disable()
	defer s.irq.Restore(old)
	return s.scheduler.IncreasePriority(s.current.id)
}

// DecreasePriority lowers the current thread's priority by one.
func (s *System) DecreasePriority() bool {
	old := s.irq.Disable()
	defer s.irq.Restore(old)
	return s.scheduler.DecreasePriority(s.current.id)
}

// begin runs on a new thread's goroutine when it first gets the processor.
func (s *System) begin() {
	s.checkFault()
	s.irq.Enable()
}

// finish retires the current thread and hands the processor on for good.
func (s *System) finish() {
	s.irq.Disable()

	cur := s.current
	cur.status = StatusFinished
	s.emit(cur, EventFinish)
	for {
		id, ok := cur.joinQueue.NextThread()
		if !ok {
			break
		}
		s.threads[id].Ready()
	}
	delete(s.threads, cur.id)

	s.Sleep()
}

// runNextThread hands the processor to the next ready thread, idling the
// machine until an interrupt readies one.
func (s *System) runNextThread() {
	for {
		id, ok := s.readyQueue.NextThread()
		if ok {
			s.run(s.threads[id])
			return
		}
		machine.Assert(s.wakePending(), "deadlock: %s blocked with no runnable threads and no pending wakeups", s.current)
		s.irq.Idle()
	}
}

// run switches from the current thread to next. It returns when the calling
// thread gets the processor back, or immediately if the caller finished.
func (s *System) run(next *Thread) {
	prev := s.current
	s.switches++
	s.current = next
	next.status = StatusRunning
	s.emit(next, EventRun)
	if prev == next {
		return
	}

	finished := prev.status == StatusFinished
	if finished {
		s.scheduler.Forget(prev.id)
	}
	next.permit <- struct{}{}
	if finished {
		return
	}
	<-prev.permit
	s.checkFault()
}

func (s *System) wakePending() bool {
	for _, pending := range s.wakeSources {
		if pending() {
			return true
		}
	}
	return false
}

// crash records a panic raised on a forked thread and hands the processor to
// the main thread, where the panic is raised again.
func (s *System) crash(r any) {
	s.logger.Error("thread crashed", "thread", s.current.String(), "panic", r)
	s.fault = r
	s.current = s.main
	s.main.permit <- struct{}{}
}

func (s *System) checkFault() {
	if s.fault != nil {
		panic(s.fault)
	}
}

func (s *System) emit(t *Thread, kind EventKind) {
	ev := Event{Time: s.irq.Time(), Thread: t.id, Name: t.name, Kind: kind}
	s.logger.Debug("thread event", "time", ev.Time, "thread", ev.Name, "id", int(ev.Thread), "event", string(kind))
	for _, o := range s.observers {
		o.ThreadEvent(ev)
	}
}
