package selftest

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/kcajmagic/COSC-NACHOS/internal/kernel"
	"github.com/kcajmagic/COSC-NACHOS/internal/kthread"
	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
)

func alarmScenario() Scenario {
	return Scenario{
		Name:        "alarm",
		Description: "threads sleep for different durations and wake at or after their deadlines, in deadline order",
		Run:         runAlarm,
	}
}

func runAlarm(k *kernel.Kernel) error {
	type sleeper struct {
		name     string
		duration int64
		deadline int64
		woke     int64
	}
	sleepers := []*sleeper{
		{name: "sleeper 1700", duration: 1700},
		{name: "sleeper 200", duration: 200},
		{name: "sleeper 900", duration: 900},
		{name: "sleeper 500", duration: 500},
		{name: "sleeper 1300", duration: 1300},
	}

	// The tick at which each thread went back on the ready queue. It is
	// the timer interrupt that woke it, whatever order threads then run in.
	readied := map[string]int64{}
	k.Threads.AddObserver(kthread.ObserverFunc(func(ev kthread.Event) {
		if ev.Kind == kthread.EventReady {
			readied[ev.Name] = ev.Time
		}
	}))

	var threads []*kthread.Thread
	for _, s := range sleepers {
		threads = append(threads, k.Fork(s.name, func() {
			s.deadline = k.Time() + s.duration
			k.Alarm.WaitUntil(s.duration)
			s.woke = k.Time()
		}))
	}
	for _, th := range threads {
		th.Join()
	}

	for _, s := range sleepers {
		if s.woke < s.deadline {
			return fmt.Errorf("%s woke at %d before its deadline %d", s.name, s.woke, s.deadline)
		}
		if readied[s.name] >= s.deadline+k.Machine.Timer.Interval() {
			return fmt.Errorf("%s readied at %d, more than one timer interval after %d", s.name, readied[s.name], s.deadline)
		}
	}

	byDeadline := slices.Clone(sleepers)
	slices.SortStableFunc(byDeadline, func(a, b *sleeper) int { return cmpInt64(a.deadline, b.deadline) })
	for i := 1; i < len(byDeadline); i++ {
		prev, cur := byDeadline[i-1], byDeadline[i]
		if readied[cur.name] < readied[prev.name] {
			return fmt.Errorf("%s (deadline %d) woke before %s (deadline %d)", cur.name, cur.deadline, prev.name, prev.deadline)
		}
	}
	if n := k.Alarm.Sleeping(); n != 0 {
		return fmt.Errorf("%d threads still sleeping", n)
	}
	return nil
}

func conditionScenario() Scenario {
	return Scenario{
		Name:        "condition",
		Description: "ten threads sleep on a condition; wake releases the oldest, wakeAll the rest in order",
		Run:         runCondition,
	}
}

func runCondition(k *kernel.Kernel) error {
	const n = 10
	lock := k.NewLock()
	cond := k.NewCondition(lock)

	var resumed []string
	var threads []*kthread.Thread
	for i := range n {
		name := fmt.Sprintf("thread #%d", i)
		threads = append(threads, k.Fork(name, func() {
			lock.Acquire()
			cond.Sleep()
			if !lock.IsHeldByCurrentThread() {
				resumed = append(resumed, name+" without lock")
			} else {
				resumed = append(resumed, name)
			}
			lock.Release()
		}))
	}

	for cond.Waiting() < n {
		k.Yield()
	}

	lock.Acquire()
	cond.Wake()
	lock.Release()
	for len(resumed) < 1 {
		k.Yield()
	}
	if resumed[0] != "thread #0" {
		return fmt.Errorf("wake resumed %q, want the oldest sleeper", resumed[0])
	}
	if cond.Waiting() != n-1 {
		return fmt.Errorf("%d sleepers after one wake, want %d", cond.Waiting(), n-1)
	}

	lock.Acquire()
	cond.WakeAll()
	lock.Release()
	for _, th := range threads {
		th.Join()
	}

	want := make([]string, 0, n)
	for i := range n {
		want = append(want, fmt.Sprintf("thread #%d", i))
	}
	got := resumed
	if k.Scheduler.Policy().Name == sched.PolicyLottery {
		// Woken threads are readied in order but the lottery runs them in
		// any order.
		got = slices.Clone(resumed)
		slices.SortFunc(got, compareThreadNames)
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("resume order %v, want %v", resumed, want)
	}
	return nil
}

func communicatorScenario() Scenario {
	return Scenario{
		Name:        "communicator",
		Description: "speakers and listeners rendezvous in four arrangements; every word is heard exactly once",
		Run:         runCommunicator,
	}
}

func runCommunicator(k *kernel.Kernel) error {
	// One speaker waits for one listener.
	{
		c := k.NewCommunicator()
		var heard []int32
		sp := k.Fork("speaker", func() { c.Speak(100) })
		k.Yield()
		ls := k.Fork("listener", func() { heard = append(heard, c.Listen()) })
		k.Yield()
		ls.Join()
		sp.Join()
		if err := sameWords("speaker first", heard, []int32{100}); err != nil {
			return err
		}
	}

	// One listener waits for one speaker.
	{
		c := k.NewCommunicator()
		var heard []int32
		ls := k.Fork("listener", func() { heard = append(heard, c.Listen()) })
		k.Yield()
		sp := k.Fork("speaker", func() { c.Speak(100) })
		k.Yield()
		ls.Join()
		sp.Join()
		if err := sameWords("listener first", heard, []int32{100}); err != nil {
			return err
		}
	}

	// Many speakers arrive before many listeners.
	{
		c := k.NewCommunicator()
		var spoken, heard []int32
		var threads []*kthread.Thread
		for i := range 10 {
			word := int32((i + 1) * 100)
			spoken = append(spoken, word)
			threads = append(threads, k.Fork(fmt.Sprintf("speaker #%d", i), func() { c.Speak(word) }))
		}
		k.Yield()
		for i := range 10 {
			threads = append(threads, k.Fork(fmt.Sprintf("listener #%d", i), func() { heard = append(heard, c.Listen()) }))
		}
		k.Yield()
		for _, th := range threads {
			th.Join()
		}
		if err := sameWords("speakers first", heard, spoken); err != nil {
			return err
		}
	}

	// Speakers and listeners forked in a shuffled order.
	{
		c := k.NewCommunicator()
		rng := rand.New(rand.NewPCG(k.Config.Seed, 0x5eed))
		var spoken, heard []int32
		var threads []*kthread.Thread
		for i := range 10 {
			word := int32((i + 1) * 10)
			spoken = append(spoken, word)
			threads = append(threads, k.Threads.NewThread(fmt.Sprintf("speaker #%d", i), func() { c.Speak(word) }))
		}
		for i := range 10 {
			threads = append(threads, k.Threads.NewThread(fmt.Sprintf("listener #%d", i), func() { heard = append(heard, c.Listen()) }))
		}
		rng.Shuffle(len(threads), func(i, j int) { threads[i], threads[j] = threads[j], threads[i] })
		for _, th := range threads {
			th.Fork()
		}
		k.Yield()
		for _, th := range threads {
			th.Join()
		}
		if err := sameWords("shuffled", heard, spoken); err != nil {
			return err
		}
	}
	return nil
}

func priorityScenario() Scenario {
	return Scenario{
		Name:        "priority",
		Description: "a low-priority lock holder inherits the priority of higher-priority waiters until it releases",
		Scheduler:   sched.PolicyPriority,
		Run:         runPriority,
	}
}

func runPriority(k *kernel.Kernel) error {
	lock := k.NewLock()
	var log []string
	var donated, afterRelease int64

	low := k.ForkWithPriority("low", sched.PriorityDefault, func() {
		lock.Acquire()
		log = append(log, "low acquired")
		k.Yield()
		donated = k.Threads.Current().EffectivePriority()
		lock.Release()
		afterRelease = k.Threads.Current().EffectivePriority()
		log = append(log, "low released")
	})
	k.Yield()
	if len(log) != 1 {
		return fmt.Errorf("low did not take the lock before the contenders started: %v", log)
	}

	var contenders []*kthread.Thread
	for i := range 5 {
		name := fmt.Sprintf("#%d", i)
		contenders = append(contenders, k.ForkWithPriority(name, int64(i+3), func() {
			log = append(log, name+" waiting")
			lock.Acquire()
			log = append(log, name+" acquired")
			k.Yield()
			lock.Release()
		}))
	}
	k.Threads.Current().SetPriority(sched.PriorityMinimum)
	k.Yield()

	low.Join()
	for _, th := range contenders {
		th.Join()
	}

	if donated != sched.PriorityMaximum {
		return fmt.Errorf("holder's effective priority while #4 waited = %d, want %d", donated, sched.PriorityMaximum)
	}
	if afterRelease != sched.PriorityDefault {
		return fmt.Errorf("holder's effective priority after release = %d, want %d", afterRelease, sched.PriorityDefault)
	}
	want := []string{
		"low acquired",
		"#4 waiting",
		"low released",
		"#4 acquired",
		"#3 waiting", "#3 acquired",
		"#2 waiting", "#2 acquired",
		"#1 waiting", "#1 acquired",
		"#0 waiting", "#0 acquired",
	}
	if !slices.Equal(log, want) {
		return fmt.Errorf("schedule %v, want %v", log, want)
	}
	return nil
}

func lotteryScenario() Scenario {
	return Scenario{
		Name:        "lottery",
		Description: "tickets donate by sum and waiters win in proportion to their tickets",
		Scheduler:   sched.PolicyLottery,
		Run:         runLottery,
	}
}

func runLottery(k *kernel.Kernel) error {
	const draws = 60000
	tickets := []int64{10, 20, 30}

	irq := k.Machine.Interrupt
	old := irq.Disable()
	defer irq.Restore(old)

	// A private scheduler sharing the kernel's policy and random source,
	// so these thread ids cannot collide with kernel threads.
	s := sched.New(k.Scheduler.Policy())
	q := s.NewThreadQueue(true)
	const holder sched.ThreadID = 100
	q.Acquire(holder)
	for i, n := range tickets {
		id := sched.ThreadID(i + 1)
		s.SetPriority(id, n)
		q.WaitForAccess(id)
	}

	if got := q.EffectivePriority(); got != 60 {
		return fmt.Errorf("queue tickets = %d, want 60", got)
	}
	if got := s.EffectivePriority(holder); got != 61 {
		return fmt.Errorf("holder tickets = %d, want 61", got)
	}

	wins := make([]int, len(tickets))
	for range draws {
		id, ok := q.PickNextThread()
		if !ok {
			return fmt.Errorf("empty draw from a queue with %d waiters", q.Len())
		}
		wins[int(id)-1]++
	}
	for i, n := range tickets {
		want := float64(draws) * float64(n) / 60
		got := float64(wins[i])
		if got < want*0.95 || got > want*1.05 {
			return fmt.Errorf("waiter with %d tickets won %d of %d draws, want about %.0f", n, wins[i], draws, want)
		}
	}

	for q.Len() > 0 {
		q.NextThread()
	}
	last, _ := q.Owner()
	if got := s.EffectivePriority(holder); got != 1 {
		return fmt.Errorf("old holder kept %d donated tickets", got)
	}
	if got := s.EffectivePriority(last); got != s.Priority(last) {
		return fmt.Errorf("owner of an empty queue has %d tickets, want its own %d", got, s.Priority(last))
	}
	return nil
}

func sameWords(arrangement string, heard, spoken []int32) error {
	h := slices.Clone(heard)
	sp := slices.Clone(spoken)
	slices.Sort(h)
	slices.Sort(sp)
	if !slices.Equal(h, sp) {
		return fmt.Errorf("%s: heard %v, spoke %v", arrangement, heard, spoken)
	}
	return nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareThreadNames(a, b string) int {
	var x, y int
	fmt.Sscanf(a, "thread #%d", &x)
	fmt.Sscanf(b, "thread #%d", &y)
	return x - y
}
