package sched

import "github.com/kcajmagic/COSC-NACHOS/internal/machine"

// ThreadQueue is the contract every synchronization primitive uses to block
// threads on a resource.
type ThreadQueue interface {
	// WaitForAccess records that t is blocked waiting for the resource.
	WaitForAccess(t ThreadID)
	// Acquire records that t now holds the resource without waiting.
	Acquire(t ThreadID)
	// NextThread removes and returns the waiter that should run next, which
	// becomes the owner. ok is false if nobody is waiting.
	NextThread() (t ThreadID, ok bool)
}

var _ ThreadQueue = (*Queue)(nil)

// Queue is a handle to a wait queue in a Scheduler's arena.
type Queue struct {
	s    *Scheduler
	slot int
}

// WaitForAccess appends t to the queue and invalidates everything that
// depends on the queue's donation. If t was recorded as the owner of this
// queue, that stale ownership is cleared.
func (q *Queue) WaitForAccess(t ThreadID) {
	s := q.s
	ti := s.slot(t)
	machine.Assert(s.threads[ti].waiting == none, "thread %d is already waiting on a queue", t)

	qs := &s.queues[q.slot]
	qs.waiters = append(qs.waiters, ti)
	s.threads[ti].waiting = q.slot

	msgs := []invalidation{{queueNode, q.slot}}
	if qs.owner == ti {
		qs.owner = none
		s.removeOwned(ti, q.slot)
		msgs = append(msgs, invalidation{threadNode, ti})
	}
	s.invalidate(msgs...)
}

// Acquire makes t the owner of the queue. The previous owner, if any, loses
// whatever this queue was donating to it.
func (q *Queue) Acquire(t ThreadID) {
	s := q.s
	ti := s.slot(t)
	qs := &s.queues[q.slot]
	for _, w := range qs.waiters {
		machine.Assert(w != ti, "thread %d acquiring a queue it is waiting on", t)
	}

	var msgs []invalidation
	if prev := qs.owner; prev != ti {
		if prev != none {
			s.removeOwned(prev, q.slot)
			msgs = append(msgs, invalidation{threadNode, prev})
		}
		qs.owner = ti
		s.threads[ti].owned = append(s.threads[ti].owned, q.slot)
	}
	if s.threads[ti].waiting == q.slot {
		s.threads[ti].waiting = none
	}
	msgs = append(msgs, invalidation{threadNode, ti})
	s.invalidate(msgs...)
}

// NextThread removes the waiter chosen by the policy and transfers
// ownership to it.
func (q *Queue) NextThread() (ThreadID, bool) {
	s := q.s
	if len(s.queues[q.slot].waiters) == 0 {
		return 0, false
	}

	i := q.pick()
	qs := &s.queues[q.slot]
	ti := qs.waiters[i]
	qs.waiters = append(qs.waiters[:i], qs.waiters[i+1:]...)
	s.threads[ti].waiting = none
	s.invalidate(invalidation{queueNode, q.slot})

	t := s.threads[ti].id
	q.Acquire(t)
	return t, true
}

// PickNextThread returns the waiter NextThread would choose without
// changing the queue. Under the lottery policy every call is a fresh draw.
func (q *Queue) PickNextThread() (ThreadID, bool) {
	if len(q.s.queues[q.slot].waiters) == 0 {
		return 0, false
	}
	return q.s.threads[q.s.queues[q.slot].waiters[q.pick()]].id, true
}

// EffectivePriority returns the value this queue donates to its owner: the
// policy's minimum when the queue does not transfer or is empty, otherwise
// the combination of its waiters' effective values.
func (q *Queue) EffectivePriority() int64 {
	return q.s.queueEffective(q.slot)
}

// TransfersPriority reports whether waiters donate to the owner.
func (q *Queue) TransfersPriority() bool {
	return q.s.queues[q.slot].transfer
}

// Len returns the number of waiters.
func (q *Queue) Len() int {
	return len(q.s.queues[q.slot].waiters)
}

// Owner returns the thread holding the resource, if any.
func (q *Queue) Owner() (ThreadID, bool) {
	owner := q.s.queues[q.slot].owner
	if owner == none {
		return 0, false
	}
	return q.s.threads[owner].id, true
}

// Waiters returns the waiting threads in arrival order.
func (q *Queue) Waiters() []ThreadID {
	waiters := q.s.queues[q.slot].waiters
	ids := make([]ThreadID, len(waiters))
	for i, ti := range waiters {
		ids[i] = q.s.threads[ti].id
	}
	return ids
}

func (q *Queue) pick() int {
	waiters := q.s.queues[q.slot].waiters
	weights := make([]int64, len(waiters))
	for i, ti := range waiters {
		weights[i] = q.s.threadEffective(ti)
	}
	return q.s.policy.Select(weights)
}
