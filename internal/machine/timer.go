package machine

// Timer is the hardware timer. It interrupts the processor every interval
// ticks and calls the installed handler from interrupt context.
type Timer struct {
	irq      *Interrupt
	interval int64
	handler  func()
	fired    uint64
}

// NewTimer creates a timer driven by irq and schedules its first interrupt.
func NewTimer(irq *Interrupt, interval int64) *Timer {
	if interval <= 0 {
		interval = DefaultTimerInterval
	}
	t := &Timer{irq: irq, interval: interval}
	t.scheduleNext()
	return t
}

// SetInterruptHandler installs the callback run on every timer interrupt.
// Only one handler is supported; a later call replaces the earlier one.
func (t *Timer) SetInterruptHandler(handler func()) {
	t.handler = handler
}

// Time returns the current simulated time in ticks.
func (t *Timer) Time() int64 {
	return t.irq.Time()
}

// Interval returns the number of ticks between timer interrupts.
func (t *Timer) Interval() int64 {
	return t.interval
}

// Fired returns how many timer interrupts have been delivered.
func (t *Timer) Fired() uint64 {
	return t.fired
}

func (t *Timer) scheduleNext() {
	t.irq.Schedule(t.interval, "timer", t.fire)
}

func (t *Timer) fire() {
	t.fired++
	t.scheduleNext()
	if t.handler != nil {
		t.handler()
	}
}
