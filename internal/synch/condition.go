package synch

import (
	"github.com/kcajmagic/COSC-NACHOS/internal/kthread"
	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
)

// Condition is a monitor condition variable bound to a Lock. It disables
// interrupts rather than using a semaphore, and wakes sleepers in the order
// they went to sleep.
type Condition struct {
	lock    *Lock
	waiters []*kthread.Thread
}

// NewCondition allocates a condition variable. The current thread must hold
// lock whenever it calls Sleep, Wake or WakeAll.
func NewCondition(lock *Lock) *Condition {
	return &Condition{lock: lock}
}

// Sleep atomically releases the lock and blocks until woken, then
// reacquires the lock before returning.
func (c *Condition) Sleep() {
	machine.Assert(c.lock.IsHeldByCurrentThread(), "condition sleep without holding the lock")

	sys := c.lock.sys
	irq := sys.Interrupt()
	old := irq.Disable()

	c.lock.Release()
	c.waiters = append(c.waiters, sys.Current())
	sys.Sleep()
	c.lock.Acquire()

	irq.Restore(old)
}

// Wake readies the thread that has been sleeping longest. At least one
// thread must be sleeping.
func (c *Condition) Wake() {
	machine.Assert(c.lock.IsHeldByCurrentThread(), "condition wake without holding the lock")
	machine.Assert(len(c.waiters) > 0, "condition wake with no sleepers")

	irq := c.lock.sys.Interrupt()
	old := irq.Disable()

	t := c.waiters[0]
	c.waiters[0] = nil
	c.waiters = c.waiters[1:]
	t.Ready()

	irq.Restore(old)
}

// WakeAll readies every sleeping thread, oldest first.
func (c *Condition) WakeAll() {
	machine.Assert(c.lock.IsHeldByCurrentThread(), "condition wakeAll without holding the lock")

	for len(c.waiters) > 0 {
		c.Wake()
	}
}

// Waiting returns the number of sleeping threads.
func (c *Condition) Waiting() int {
	return len(c.waiters)
}
