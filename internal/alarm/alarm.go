// Package alarm lets threads sleep until a point in simulated time.
package alarm

import (
	"container/heap"
	"log/slog"

	"github.com/kcajmagic/COSC-NACHOS/internal/kthread"
	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
)

type entry struct {
	thread *kthread.Thread
	wake   int64
	seq    uint64
}

// wakeList orders sleepers by wake time, then by arrival.
type wakeList []entry

func (l wakeList) Len() int { return len(l) }
func (l wakeList) Less(i, j int) bool {
	if l[i].wake != l[j].wake {
		return l[i].wake < l[j].wake
	}
	return l[i].seq < l[j].seq
}
func (l wakeList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l *wakeList) Push(x any)   { *l = append(*l, x.(entry)) }
func (l *wakeList) Pop() any {
	old := *l
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*l = old[:n-1]
	return e
}

// Alarm uses the hardware timer to wake sleeping threads. A kernel must
// have exactly one, since it takes over the timer's interrupt handler.
type Alarm struct {
	sys     *kthread.System
	timer   *machine.Timer
	waiting wakeList
	seq     uint64
	woken   uint64
	logger  *slog.Logger
}

// New creates an alarm, installs it as the timer's interrupt handler and
// registers it as a wake source with the thread system.
func New(sys *kthread.System, timer *machine.Timer, logger *slog.Logger) *Alarm {
	a := &Alarm{
		sys:    sys,
		timer:  timer,
		logger: logger.With("component", "alarm"),
	}
	timer.SetInterruptHandler(a.TimerInterrupt)
	sys.AddWakeSource(func() bool { return a.Sleeping() > 0 })
	return a
}

// TimerInterrupt is the timer callback. It readies every sleeper whose wake
// time has passed; the list is ordered, so it stops at the first one that
// is not yet due. Woken threads are only made ready, not switched to.
func (a *Alarm) TimerInterrupt() {
	now := a.timer.Time()
	for len(a.waiting) > 0 && a.waiting[0].wake <= now {
		e := heap.Pop(&a.waiting).(entry)
		a.woken++
		a.logger.Debug("wake", "thread", e.thread.Name(), "due", e.wake, "now", now)
		e.thread.Ready()
	}
}

// WaitUntil puts the current thread to sleep for at least x ticks. It is
// woken by the first timer interrupt at which the time is at least the time
// of the call plus x.
func (a *Alarm) WaitUntil(x int64) {
	irq := a.sys.Interrupt()
	old := irq.Disable()

	a.seq++
	cur := a.sys.Current()
	heap.Push(&a.waiting, entry{thread: cur, wake: a.timer.Time() + x, seq: a.seq})
	a.sys.Sleep()

	irq.Restore(old)
}

// Sleeping returns the number of threads waiting on the alarm.
func (a *Alarm) Sleeping() int {
	return len(a.waiting)
}

// Woken returns how many sleepers the alarm has readied.
func (a *Alarm) Woken() uint64 {
	return a.woken
}
