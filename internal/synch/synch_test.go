package synch

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/kcajmagic/COSC-NACHOS/internal/kthread"
	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSystem(t *testing.T) *kthread.System {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := machine.New(machine.DefaultConfig(), logger)
	return kthread.NewSystem(m.Interrupt, sched.New(sched.PriorityPolicy()), logger)
}

func joinAll(threads ...*kthread.Thread) {
	for _, th := range threads {
		th.Join()
	}
}

func assertAssertion(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		_, ok := r.(*machine.AssertionError)
		assert.True(t, ok, "expected *machine.AssertionError panic, got %v", r)
	}()
	fn()
}

func TestLock_MutualExclusion(t *testing.T) {
	sys := testSystem(t)
	lock := NewLock(sys)

	inside := 0
	maxInside := 0
	worker := func() {
		for range 3 {
			lock.Acquire()
			inside++
			maxInside = max(maxInside, inside)
			sys.Yield()
			inside--
			lock.Release()
			sys.Yield()
		}
	}

	a := sys.Fork("a", worker)
	b := sys.Fork("b", worker)
	joinAll(a, b)

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, lock.Waiting())
}

func TestLock_DonatesToHolder(t *testing.T) {
	sys := testSystem(t)
	lock := NewLock(sys)
	main := sys.Current()

	lock.Acquire()
	hi := sys.NewThread("high", func() {
		lock.Acquire()
		lock.Release()
	})
	hi.SetPriority(5)
	hi.Fork()

	sys.Yield()
	require.Equal(t, kthread.StatusBlocked, hi.Status())
	assert.Equal(t, 1, lock.Waiting())
	assert.EqualValues(t, 5, main.EffectivePriority())
	assert.EqualValues(t, sched.PriorityDefault, main.Priority())

	lock.Release()
	assert.EqualValues(t, sched.PriorityDefault, main.EffectivePriority())
	hi.Join()
}

func TestLock_ReleaseHandsOffToHighest(t *testing.T) {
	sys := testSystem(t)
	lock := NewLock(sys)

	var order []string
	body := func(name string) func() {
		return func() {
			lock.Acquire()
			order = append(order, name)
			lock.Release()
		}
	}

	lock.Acquire()
	lo := sys.NewThread("low", body("low"))
	hi := sys.NewThread("high", body("high"))
	lo.SetPriority(2)
	hi.SetPriority(4)
	lo.Fork()
	hi.Fork()
	sys.Yield()
	require.Equal(t, 2, lock.Waiting())

	lock.Release()
	joinAll(lo, hi)
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestLock_DoubleAcquireIsFatal(t *testing.T) {
	lock := NewLock(testSystem(t))
	lock.Acquire()
	assertAssertion(t, lock.Acquire)
}

func TestLock_ReleaseNotHeldIsFatal(t *testing.T) {
	lock := NewLock(testSystem(t))
	assertAssertion(t, lock.Release)
}

func TestCondition_WakeIsFIFO(t *testing.T) {
	sys := testSystem(t)
	lock := NewLock(sys)
	cond := NewCondition(lock)

	var order []string
	var threads []*kthread.Thread
	for _, name := range []string{"a", "b", "c"} {
		threads = append(threads, sys.Fork(name, func() {
			lock.Acquire()
			cond.Sleep()
			assert.True(t, lock.IsHeldByCurrentThread(), "%s resumed without the lock", name)
			order = append(order, name)
			lock.Release()
		}))
	}

	sys.Yield()
	lock.Acquire()
	require.Equal(t, 3, cond.Waiting())
	cond.Wake()
	cond.Wake()
	cond.Wake()
	assert.Equal(t, 0, cond.Waiting())
	lock.Release()
	joinAll(threads...)

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCondition_WakeAll(t *testing.T) {
	sys := testSystem(t)
	lock := NewLock(sys)
	cond := NewCondition(lock)

	woken := 0
	var threads []*kthread.Thread
	for range 4 {
		threads = append(threads, sys.Fork("sleeper", func() {
			lock.Acquire()
			cond.Sleep()
			woken++
			lock.Release()
		}))
	}

	sys.Yield()
	lock.Acquire()
	cond.WakeAll()
	lock.Release()
	joinAll(threads...)

	assert.Equal(t, 4, woken)
}

func TestCondition_WakeAllWithNoSleepers(t *testing.T) {
	lock := NewLock(testSystem(t))
	cond := NewCondition(lock)
	lock.Acquire()
	cond.WakeAll()
	lock.Release()
}

func TestCondition_RequiresLock(t *testing.T) {
	lock := NewLock(testSystem(t))
	cond := NewCondition(lock)
	assertAssertion(t, cond.Sleep)
	assertAssertion(t, cond.WakeAll)
}

func TestCondition_WakeWithNoSleepersIsFatal(t *testing.T) {
	lock := NewLock(testSystem(t))
	cond := NewCondition(lock)
	lock.Acquire()
	assertAssertion(t, cond.Wake)
}

func TestCommunicator_SpeakerFirst(t *testing.T) {
	sys := testSystem(t)
	c := NewCommunicator(sys)

	sp := sys.Fork("speaker", func() { c.Speak(42) })
	sys.Yield()
	speakers, listeners := c.Waiting()
	assert.Equal(t, 1, speakers)
	assert.Equal(t, 0, listeners)

	assert.EqualValues(t, 42, c.Listen())
	sp.Join()
}

func TestCommunicator_ListenerFirst(t *testing.T) {
	sys := testSystem(t)
	c := NewCommunicator(sys)

	var got int32
	ls := sys.Fork("listener", func() { got = c.Listen() })
	sys.Yield()
	c.Speak(-7)
	ls.Join()

	assert.EqualValues(t, -7, got)
}

func TestCommunicator_EveryWordDeliveredOnce(t *testing.T) {
	sys := testSystem(t)
	c := NewCommunicator(sys)
	rng := rand.New(rand.NewPCG(7, 11))

	const n = 8
	type role struct {
		speaker bool
		word    int32
	}
	var roles []role
	for i := range n {
		roles = append(roles, role{speaker: true, word: int32(i * 100)}, role{})
	}
	rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })

	var heard []int32
	var threads []*kthread.Thread
	for _, r := range roles {
		if r.speaker {
			threads = append(threads, sys.Fork("speaker", func() { c.Speak(r.word) }))
		} else {
			threads = append(threads, sys.Fork("listener", func() { heard = append(heard, c.Listen()) }))
		}
	}
	joinAll(threads...)

	want := make([]int32, 0, n)
	for i := range n {
		want = append(want, int32(i*100))
	}
	slices.Sort(heard)
	assert.Equal(t, want, heard)
}
