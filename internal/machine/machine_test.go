package machine

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInterrupt_EnableAdvancesClock(t *testing.T) {
	irq := NewInterrupt(10, testLogger())
	if irq.Enabled() {
		t.Fatal("interrupts should start disabled")
	}

	irq.Enable()
	if got := irq.Time(); got != 10 {
		t.Errorf("Time() = %d, want 10", got)
	}

	// Disable/restore to disabled must not tick.
	old := irq.Disable()
	if !old {
		t.Error("Disable() should report prior enabled status")
	}
	inner := irq.Disable()
	irq.Restore(inner)
	if got := irq.Time(); got != 10 {
		t.Errorf("nested restore ticked: Time() = %d, want 10", got)
	}

	irq.Restore(old)
	if got := irq.Time(); got != 20 {
		t.Errorf("Time() = %d, want 20", got)
	}
}

func TestInterrupt_ScheduleOrder(t *testing.T) {
	irq := NewInterrupt(10, testLogger())
	var order []string
	irq.Schedule(30, "b", func() { order = append(order, "b") })
	irq.Schedule(20, "a", func() { order = append(order, "a") })
	irq.Schedule(30, "c", func() { order = append(order, "c") })

	if !irq.Idle() {
		t.Fatal("Idle() = false with pending interrupts")
	}
	if irq.Time() != 20 {
		t.Errorf("Time() = %d, want 20", irq.Time())
	}
	irq.Idle()
	if irq.Time() != 30 {
		t.Errorf("Time() = %d, want 30", irq.Time())
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	if irq.Idle() {
		t.Error("Idle() = true with nothing pending")
	}
}

func TestInterrupt_HandlerRunsDisabled(t *testing.T) {
	irq := NewInterrupt(10, testLogger())
	irq.Enable()

	var sawDisabled bool
	irq.Schedule(5, "probe", func() { sawDisabled = irq.Disabled() })

	old := irq.Disable()
	irq.Restore(old) // tick to 20, probe due at 15

	if !sawDisabled {
		t.Error("handler should run with interrupts disabled")
	}
	if !irq.Enabled() {
		t.Error("status should be restored after the handler")
	}
}

func TestTimer_FiresEveryInterval(t *testing.T) {
	m := New(Config{KernelTick: 10, TimerInterval: 500}, testLogger())

	var times []int64
	m.Timer.SetInterruptHandler(func() { times = append(times, m.Timer.Time()) })

	for i := 0; i < 3; i++ {
		m.Interrupt.Idle()
	}

	want := []int64{500, 1000, 1500}
	if len(times) != len(want) {
		t.Fatalf("timer fired at %v, want %v", times, want)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("fire %d at %d, want %d", i, times[i], want[i])
		}
	}
	if m.Timer.Fired() != 3 {
		t.Errorf("Fired() = %d, want 3", m.Timer.Fired())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.KernelTick != DefaultKernelTick || cfg.TimerInterval != DefaultTimerInterval {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}

	m := New(Config{}, testLogger())
	if m.Timer.Interval() != DefaultTimerInterval {
		t.Errorf("zero interval should default, got %d", m.Timer.Interval())
	}
}

func TestAssert(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %T is not an error", r)
		}
		var ae *AssertionError
		if !errors.As(err, &ae) {
			t.Fatalf("panic value %T is not *AssertionError", r)
		}
		if ae.Message != "value 3 out of range" {
			t.Errorf("Message = %q", ae.Message)
		}
	}()

	Assert(true, "never")
	Assert(false, "value %d out of range", 3)
	t.Fatal("Assert(false) did not panic")
}

func TestInterrupt_IdleRequiresDisabled(t *testing.T) {
	irq := NewInterrupt(10, testLogger())
	irq.Enable()
	defer func() {
		if _, ok := recover().(*AssertionError); !ok {
			t.Error("Idle with interrupts enabled should assert")
		}
	}()
	irq.Idle()
}
