// Package machine simulates the uniprocessor the kernel runs on: an
// interrupt controller that owns the clock, and a periodic hardware timer.
package machine

import "log/slog"

// Default costs, in ticks.
const (
	DefaultKernelTick    = 10
	DefaultTimerInterval = 500
)

// Config holds machine configuration.
type Config struct {
	KernelTick    int64
	TimerInterval int64
}

// DefaultConfig returns the standard tick costs.
func DefaultConfig() Config {
	return Config{
		KernelTick:    DefaultKernelTick,
		TimerInterval: DefaultTimerInterval,
	}
}

// Machine bundles the devices of one simulated processor.
type Machine struct {
	Interrupt *Interrupt
	Timer     *Timer
}

// New creates a machine with interrupts disabled at time zero.
func New(cfg Config, logger *slog.Logger) *Machine {
	irq := NewInterrupt(cfg.KernelTick, logger)
	return &Machine{
		Interrupt: irq,
		Timer:     NewTimer(irq, cfg.TimerInterval),
	}
}
