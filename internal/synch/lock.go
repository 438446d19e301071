// Package synch provides the blocking synchronization primitives built on
// kernel threads: a mutual-exclusion lock, a condition variable and a
// synchronous word channel.
package synch

import (
	"github.com/kcajmagic/COSC-NACHOS/internal/kthread"
	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
)

// Lock is a mutual-exclusion lock. Threads blocked on it donate their
// priority (or tickets) to the holder.
type Lock struct {
	sys       *kthread.System
	holder    *kthread.Thread
	waitQueue *sched.Queue
}

// NewLock allocates a lock on sys.
func NewLock(sys *kthread.System) *Lock {
	return &Lock{
		sys:       sys,
		waitQueue: sys.Scheduler().NewThreadQueue(true),
	}
}

// Acquire blocks until the current thread holds the lock.
func (l *Lock) Acquire() {
	machine.Assert(!l.IsHeldByCurrentThread(), "%s acquiring a lock it already holds", l.sys.Current())

	irq := l.sys.Interrupt()
	old := irq.Disable()

	cur := l.sys.Current()
	if l.holder != nil {
		l.waitQueue.WaitForAccess(cur.ID())
		l.sys.Sleep()
	} else {
		l.waitQueue.Acquire(cur.ID())
		l.holder = cur
	}
	machine.Assert(l.holder == cur, "%s woke without the lock", cur)

	irq.Restore(old)
}

// Release hands the lock to the next waiter chosen by the scheduler, if any.
func (l *Lock) Release() {
	machine.Assert(l.IsHeldByCurrentThread(), "%s releasing a lock it does not hold", l.sys.Current())

	irq := l.sys.Interrupt()
	old := irq.Disable()

	l.holder = nil
	if id, ok := l.waitQueue.NextThread(); ok {
		l.holder = l.sys.Thread(id)
		l.holder.Ready()
	}

	irq.Restore(old)
}

// IsHeldByCurrentThread reports whether the running thread holds the lock.
func (l *Lock) IsHeldByCurrentThread() bool {
	return l.holder == l.sys.Current()
}

// Waiting returns the number of threads blocked on the lock.
func (l *Lock) Waiting() int {
	return l.waitQueue.Len()
}
