package sched

import (
	"math/rand/v2"
	"testing"

	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	high ThreadID = iota + 1
	low
	mid
	other
)

func TestPriority_DonationThroughLock(t *testing.T) {
	s := New(PriorityPolicy())
	lock := s.NewThreadQueue(true)

	s.SetPriority(high, 7)
	s.SetPriority(low, 1)
	lock.Acquire(low)
	assert.EqualValues(t, 1, s.EffectivePriority(low))

	lock.WaitForAccess(high)
	assert.EqualValues(t, 7, s.EffectivePriority(low), "holder should inherit the waiter's priority")
	assert.EqualValues(t, 7, lock.EffectivePriority())
	assert.EqualValues(t, 1, s.Priority(low), "base priority is unchanged by donation")

	next, ok := lock.NextThread()
	require.True(t, ok)
	assert.Equal(t, high, next)
	assert.EqualValues(t, 1, s.EffectivePriority(low), "donation ends once the waiter acquires")

	owner, ok := lock.Owner()
	require.True(t, ok)
	assert.Equal(t, high, owner)
}

func TestPriority_EqualPriorityIsFIFO(t *testing.T) {
	s := New(PriorityPolicy())
	q := s.NewThreadQueue(false)

	for _, id := range []ThreadID{mid, high, low} {
		q.WaitForAccess(id)
	}
	assert.Equal(t, []ThreadID{mid, high, low}, q.Waiters())

	var order []ThreadID
	for q.Len() > 0 {
		next, _ := q.NextThread()
		order = append(order, next)
	}
	assert.Equal(t, []ThreadID{mid, high, low}, order)

	_, ok := q.NextThread()
	assert.False(t, ok)
}

func TestPriority_HighestEffectiveWins(t *testing.T) {
	s := New(PriorityPolicy())
	ready := s.NewThreadQueue(false)
	lock := s.NewThreadQueue(true)

	s.SetPriority(mid, 4)
	lock.Acquire(low)
	ready.WaitForAccess(mid)
	ready.WaitForAccess(low)

	next, _ := ready.PickNextThread()
	assert.Equal(t, mid, next)

	s.SetPriority(high, 6)
	lock.WaitForAccess(high)

	next, _ = ready.PickNextThread()
	assert.Equal(t, low, next, "donated priority should be used by the ready queue")
	assert.EqualValues(t, PriorityMinimum, ready.EffectivePriority(), "non-transferring queue reports the minimum")
}

func TestPriority_TransitiveChain(t *testing.T) {
	s := New(PriorityPolicy())
	q1 := s.NewThreadQueue(true)
	q2 := s.NewThreadQueue(true)

	q1.Acquire(mid)
	q2.Acquire(low)
	q2.WaitForAccess(mid)
	s.SetPriority(high, 7)
	q1.WaitForAccess(high)

	assert.EqualValues(t, 7, s.EffectivePriority(mid))
	assert.EqualValues(t, 7, s.EffectivePriority(low))

	s.SetPriority(high, 3)
	assert.EqualValues(t, 3, s.EffectivePriority(low), "lowering the donor must propagate down the chain")

	s.SetPriority(high, 0)
	assert.EqualValues(t, 1, s.EffectivePriority(low), "donation never lowers below base")
}

func TestPriority_NonTransferringQueueDoesNotDonate(t *testing.T) {
	s := New(PriorityPolicy())
	q := s.NewThreadQueue(false)
	q.Acquire(low)
	s.SetPriority(high, 7)
	q.WaitForAccess(high)

	assert.EqualValues(t, 1, s.EffectivePriority(low))
	assert.EqualValues(t, PriorityMinimum, q.EffectivePriority())
}

func TestPriority_CachedValueIsNotRecomputed(t *testing.T) {
	s := New(PriorityPolicy())
	q := s.NewThreadQueue(true)
	q.Acquire(low)
	s.SetPriority(high, 5)
	q.WaitForAccess(high)

	first := s.EffectivePriority(low)
	before := s.Recomputations()
	second := s.EffectivePriority(low)

	assert.Equal(t, first, second)
	assert.Equal(t, before, s.Recomputations(), "second read must hit the cache")

	s.SetPriority(high, 6)
	assert.EqualValues(t, 6, s.EffectivePriority(low))
	assert.Greater(t, s.Recomputations(), before)
}

func TestPriority_EmptyOwnedQueueGainsWaiter(t *testing.T) {
	s := New(PriorityPolicy())
	q := s.NewThreadQueue(true)
	q.Acquire(low)

	assert.EqualValues(t, 1, s.EffectivePriority(low))
	assert.EqualValues(t, PriorityMinimum, q.EffectivePriority())

	s.SetPriority(high, 5)
	q.WaitForAccess(high)
	assert.EqualValues(t, 5, s.EffectivePriority(low))
}

func TestPriority_WaitingOwnerLosesOwnership(t *testing.T) {
	s := New(PriorityPolicy())
	q := s.NewThreadQueue(true)

	q.Acquire(low)
	q.WaitForAccess(low)

	_, ok := q.Owner()
	assert.False(t, ok, "stale ownership should be cleared")

	next, _ := q.NextThread()
	assert.Equal(t, low, next)
	owner, _ := q.Owner()
	assert.Equal(t, low, owner)
}

func TestPriority_SetPriorityOutOfRange(t *testing.T) {
	s := New(PriorityPolicy())
	assertPanics(t, func() { s.SetPriority(low, PriorityMaximum+1) })
	assertPanics(t, func() { s.SetPriority(low, PriorityMinimum-1) })
}

func TestPriority_WaitingTwice(t *testing.T) {
	s := New(PriorityPolicy())
	a := s.NewThreadQueue(false)
	b := s.NewThreadQueue(false)
	a.WaitForAccess(low)
	assertPanics(t, func() { b.WaitForAccess(low) })
}

func TestPriority_CycleIsFatal(t *testing.T) {
	s := New(PriorityPolicy())
	q1 := s.NewThreadQueue(true)
	q2 := s.NewThreadQueue(true)
	q1.Acquire(high)
	q2.Acquire(low)
	q2.WaitForAccess(high)
	q1.WaitForAccess(low)

	assertPanics(t, func() { s.EffectivePriority(high) })
}

func TestPriority_IncreaseDecrease(t *testing.T) {
	s := New(PriorityPolicy())

	s.SetPriority(low, PriorityMaximum-1)
	assert.True(t, s.IncreasePriority(low))
	assert.False(t, s.IncreasePriority(low))
	assert.EqualValues(t, PriorityMaximum, s.Priority(low))

	s.SetPriority(low, PriorityMinimum+1)
	assert.True(t, s.DecreasePriority(low))
	assert.False(t, s.DecreasePriority(low))
	assert.EqualValues(t, PriorityMinimum, s.Priority(low))
}

func TestScheduler_Forget(t *testing.T) {
	s := New(PriorityPolicy())
	q := s.NewThreadQueue(true)
	q.Acquire(low)
	s.SetPriority(low, 5)

	s.Forget(low)
	_, ok := q.Owner()
	assert.False(t, ok)
	assert.EqualValues(t, PriorityDefault, s.Priority(low), "a forgotten thread starts over")

	q.WaitForAccess(mid)
	assertPanics(t, func() { s.Forget(mid) })
}

func TestLottery_TicketsAdd(t *testing.T) {
	s := New(LotteryPolicy(rand.New(rand.NewPCG(1, 2))))
	q := s.NewThreadQueue(true)

	q.Acquire(other)
	for id, tickets := range map[ThreadID]int64{high: 10, low: 20, mid: 30} {
		s.SetPriority(id, tickets)
		q.WaitForAccess(id)
	}

	assert.EqualValues(t, 60, q.EffectivePriority())
	assert.EqualValues(t, 61, s.EffectivePriority(other), "owner holds its own ticket plus every waiter's")
}

func TestLottery_EmptyQueueDonatesNothing(t *testing.T) {
	s := New(LotteryPolicy(rand.New(rand.NewPCG(1, 2))))
	q := s.NewThreadQueue(true)
	q.Acquire(low)
	s.SetPriority(low, 4)

	assert.EqualValues(t, TicketsMinimum, q.EffectivePriority())
	assert.EqualValues(t, 4, s.EffectivePriority(low))
}

func TestLottery_LargeTicketCounts(t *testing.T) {
	s := New(LotteryPolicy(rand.New(rand.NewPCG(3, 4))))
	q := s.NewThreadQueue(true)
	q.Acquire(other)
	for _, id := range []ThreadID{high, low, mid} {
		s.SetPriority(id, TicketsMaximum)
		q.WaitForAccess(id)
	}

	assert.EqualValues(t, int64(3)*TicketsMaximum, q.EffectivePriority())
	assert.EqualValues(t, int64(3)*TicketsMaximum+1, s.EffectivePriority(other))

	next, ok := q.NextThread()
	require.True(t, ok)
	assert.Contains(t, []ThreadID{high, low, mid}, next)
}

func TestLottery_WinsAreProportional(t *testing.T) {
	s := New(LotteryPolicy(rand.New(rand.NewPCG(42, 7))))
	q := s.NewThreadQueue(false)
	tickets := map[ThreadID]int64{high: 10, low: 20, mid: 30}
	for _, id := range []ThreadID{high, low, mid} {
		s.SetPriority(id, tickets[id])
		q.WaitForAccess(id)
	}

	const draws = 60000
	wins := map[ThreadID]int{}
	for i := 0; i < draws; i++ {
		winner, ok := q.NextThread()
		require.True(t, ok)
		wins[winner]++
		q.WaitForAccess(winner)
	}

	for id, n := range tickets {
		want := float64(draws) * float64(n) / 60
		assert.InEpsilon(t, want, float64(wins[id]), 0.05, "thread %d won %d times", id, wins[id])
	}
}

func TestRoundRobin_FIFO(t *testing.T) {
	s := New(RoundRobinPolicy())
	q := s.NewThreadQueue(true)
	q.WaitForAccess(low)
	q.WaitForAccess(high)

	next, _ := q.NextThread()
	assert.Equal(t, low, next)
	assertPanics(t, func() { s.SetPriority(high, 1) })
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{PolicyPriority, PolicyLottery, PolicyRoundRobin} {
		p, err := PolicyByName(name, 1)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		assert.True(t, Known(name))
	}

	_, err := PolicyByName("fifo", 1)
	assert.Error(t, err)
	assert.False(t, Known("fifo"))
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		_, ok := r.(*machine.AssertionError)
		assert.True(t, ok, "expected *machine.AssertionError panic, got %v", r)
	}()
	fn()
}
