// Package sched implements donating thread wait queues.
//
// A Scheduler owns an arena of thread and queue records addressed by index.
// Ownership (queue -> owning thread) and waiting (thread -> queue it is
// blocked on) are stored as indices, never as pointers between records.
// Effective values are cached per record and recomputed lazily on read; a
// change anywhere in the graph sends invalidation messages along the
// waiter -> queue -> owner edges, which is the only way a cached value is
// discarded.
//
// A Policy decides how donations combine (max for priorities, sum for
// lottery tickets) and how a waiter is selected.
//
// Callers must provide mutual exclusion; in the kernel that means holding
// interrupts disabled around every call.
package sched

import "github.com/kcajmagic/COSC-NACHOS/internal/machine"

// ThreadID identifies a thread. IDs are assigned by the thread system; the
// scheduler only uses them as keys into its arena.
type ThreadID int

const none = -1

type threadState struct {
	id        ThreadID
	priority  int64
	effective int64
	dirty     bool
	busy      bool
	owned     []int
	waiting   int
}

type queueState struct {
	transfer  bool
	waiters   []int
	owner     int
	effective int64
	dirty     bool
	busy      bool
}

type nodeKind uint8

const (
	threadNode nodeKind = iota
	queueNode
)

// invalidation tells a record that something it depends on changed.
type invalidation struct {
	kind nodeKind
	slot int
}

// Scheduler holds the scheduling state of every thread and queue it knows.
type Scheduler struct {
	policy     Policy
	threads    []threadState
	free       []int
	index      map[ThreadID]int
	queues     []queueState
	recomputes uint64
}

// New creates a scheduler using policy.
func New(policy Policy) *Scheduler {
	return &Scheduler{
		policy: policy,
		index:  make(map[ThreadID]int),
	}
}

// Policy returns the scheduler's policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// NewThreadQueue allocates a queue. If transferPriority is true, waiters
// donate their effective value to the queue's owner.
func (s *Scheduler) NewThreadQueue(transferPriority bool) *Queue {
	s.queues = append(s.queues, queueState{
		transfer:  transferPriority,
		owner:     none,
		effective: s.policy.Minimum,
	})
	return &Queue{s: s, slot: len(s.queues) - 1}
}

// Priority returns the base priority (or tickets) of t.
func (s *Scheduler) Priority(t ThreadID) int64 {
	return s.threads[s.slot(t)].priority
}

// EffectivePriority returns t's priority including donations.
func (s *Scheduler) EffectivePriority(t ThreadID) int64 {
	return s.threadEffective(s.slot(t))
}

// SetPriority sets the base priority of t. The value must lie within the
// policy's bounds.
func (s *Scheduler) SetPriority(t ThreadID, priority int64) {
	machine.Assert(priority >= s.policy.Minimum && priority <= s.policy.Maximum,
		"priority %d outside [%d, %d]", priority, s.policy.Minimum, s.policy.Maximum)

	ti := s.slot(t)
	if s.threads[ti].priority == priority {
		return
	}
	s.threads[ti].priority = priority
	s.invalidate(invalidation{threadNode, ti})
}

// IncreasePriority raises t's base priority by one. Returns false if it is
// already at the maximum.
func (s *Scheduler) IncreasePriority(t ThreadID) bool {
	p := s.Priority(t)
	if p >= s.policy.Maximum {
		return false
	}
	s.SetPriority(t, p+1)
	return true
}

// DecreasePriority lowers t's base priority by one. Returns false if it is
// already at the minimum.
func (s *Scheduler) DecreasePriority(t ThreadID) bool {
	p := s.Priority(t)
	if p <= s.policy.Minimum {
		return false
	}
	s.SetPriority(t, p-1)
	return true
}

// Forget releases the record of a thread that has exited. Queues it still
// owns become ownerless.
func (s *Scheduler) Forget(t ThreadID) {
	ti, ok := s.index[t]
	if !ok {
		return
	}
	machine.Assert(s.threads[ti].waiting == none, "thread %d exiting while waiting on a queue", t)

	for _, qi := range s.threads[ti].owned {
		s.queues[qi].owner = none
	}
	delete(s.index, t)
	s.threads[ti] = threadState{waiting: none}
	s.free = append(s.free, ti)
}

// Recomputations returns how many cached effective values have been
// recomputed since the scheduler was created.
func (s *Scheduler) Recomputations() uint64 {
	return s.recomputes
}

// slot returns the arena index for t, creating a record with the default
// priority on first use.
func (s *Scheduler) slot(t ThreadID) int {
	if ti, ok := s.index[t]; ok {
		return ti
	}
	st := threadState{
		id:        t,
		priority:  s.policy.Default,
		effective: s.policy.Default,
		waiting:   none,
	}
	var ti int
	if n := len(s.free); n > 0 {
		ti = s.free[n-1]
		s.free = s.free[:n-1]
		s.threads[ti] = st
	} else {
		ti = len(s.threads)
		s.threads = append(s.threads, st)
	}
	s.index[t] = ti
	return ti
}

// invalidate marks records dirty and forwards the message to everything
// that depends on them. A thread that is already dirty stops the walk: a
// clean queue has recomputed from all of its waiters, so the queue a dirty
// thread waits on is already dirty, and so on up the chain. Queues always
// forward, because an owner skips its empty queues and may be clean while
// one of them is dirty.
func (s *Scheduler) invalidate(msgs ...invalidation) {
	work := msgs
	for len(work) > 0 {
		m := work[len(work)-1]
		work = work[:len(work)-1]

		switch m.kind {
		case threadNode:
			ts := &s.threads[m.slot]
			if ts.dirty {
				continue
			}
			ts.dirty = true
			if ts.waiting != none {
				work = append(work, invalidation{queueNode, ts.waiting})
			}
		case queueNode:
			q := &s.queues[m.slot]
			if !q.transfer {
				continue
			}
			q.dirty = true
			if q.owner != none {
				work = append(work, invalidation{threadNode, q.owner})
			}
		}
	}
}

func (s *Scheduler) threadEffective(ti int) int64 {
	if !s.threads[ti].dirty {
		return s.threads[ti].effective
	}
	machine.Assert(!s.threads[ti].busy, "donation cycle through thread %d", s.threads[ti].id)
	s.threads[ti].busy = true
	s.recomputes++

	eff := s.threads[ti].priority
	for _, qi := range s.threads[ti].owned {
		q := &s.queues[qi]
		if !q.transfer || len(q.waiters) == 0 {
			continue
		}
		eff = s.policy.Combine(eff, s.queueEffective(qi))
	}

	ts := &s.threads[ti]
	ts.effective = eff
	ts.dirty = false
	ts.busy = false
	return eff
}

func (s *Scheduler) queueEffective(qi int) int64 {
	q := &s.queues[qi]
	if !q.transfer || len(q.waiters) == 0 {
		return s.policy.Minimum
	}
	if !q.dirty {
		return q.effective
	}
	machine.Assert(!q.busy, "donation cycle through queue %d", qi)
	q.busy = true
	s.recomputes++

	var eff int64
	for i, ti := range q.waiters {
		v := s.threadEffective(ti)
		if i == 0 {
			eff = v
		} else {
			eff = s.policy.Combine(eff, v)
		}
	}

	q = &s.queues[qi]
	q.effective = eff
	q.dirty = false
	q.busy = false
	return eff
}

// removeOwned drops queue qi from thread ti's owned set.
func (s *Scheduler) removeOwned(ti, qi int) {
	owned := s.threads[ti].owned
	for i, v := range owned {
		if v == qi {
			s.threads[ti].owned = append(owned[:i], owned[i+1:]...)
			return
		}
	}
}
