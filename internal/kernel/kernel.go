// Package kernel assembles a simulated machine, scheduler, thread system and
// alarm into one explicitly constructed kernel.
package kernel

import (
	"fmt"
	"log/slog"

	"github.com/kcajmagic/COSC-NACHOS/internal/alarm"
	"github.com/kcajmagic/COSC-NACHOS/internal/config"
	"github.com/kcajmagic/COSC-NACHOS/internal/kthread"
	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
	"github.com/kcajmagic/COSC-NACHOS/internal/synch"
)

// Kernel is one booted kernel. Its creating goroutine becomes the main
// thread, and every method must be called from whichever kernel thread
// currently holds the processor.
type Kernel struct {
	Config    config.KernelConfig
	Machine   *machine.Machine
	Scheduler *sched.Scheduler
	Threads   *kthread.System
	Alarm     *alarm.Alarm

	logger *slog.Logger
}

// Option configures a Kernel.
type Option func(*options)

type options struct {
	observers []kthread.Observer
	policy    *sched.Policy
}

// WithObserver registers o for thread lifecycle events from boot onwards.
func WithObserver(o kthread.Observer) Option {
	return func(opts *options) { opts.observers = append(opts.observers, o) }
}

// WithPolicy overrides the scheduling policy named in the configuration.
func WithPolicy(p sched.Policy) Option {
	return func(opts *options) { opts.policy = &p }
}

// New validates cfg and boots a kernel on the calling goroutine.
func New(cfg config.KernelConfig, logger *slog.Logger, opts ...Option) (*Kernel, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kernel config: %w", err)
	}

	var policy sched.Policy
	if o.policy != nil {
		policy = *o.policy
	} else {
		p, err := sched.PolicyByName(cfg.Scheduler, cfg.Seed)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	m := machine.New(cfg.Machine(), logger)
	scheduler := sched.New(policy)
	threads := kthread.NewSystem(m.Interrupt, scheduler, logger)
	for _, obs := range o.observers {
		threads.AddObserver(obs)
	}

	k := &Kernel{
		Config:    cfg,
		Machine:   m,
		Scheduler: scheduler,
		Threads:   threads,
		Alarm:     alarm.New(threads, m.Timer, logger),
		logger:    logger.With("component", "kernel"),
	}
	k.logger.Debug("boot", "scheduler", policy.Name, "timer_interval", cfg.TimerInterval, "kernel_tick", cfg.KernelTick)
	return k, nil
}

// Fork starts fn in a new thread with the policy's default priority.
func (k *Kernel) Fork(name string, fn func()) *kthread.Thread {
	return k.Threads.Fork(name, fn)
}

// ForkWithPriority starts fn in a new thread with the given base priority
// (tickets under the lottery policy).
func (k *Kernel) ForkWithPriority(name string, priority int64, fn func()) *kthread.Thread {
	t := k.Threads.NewThread(name, fn)
	t.SetPriority(priority)
	t.Fork()
	return t
}

// Yield gives up the processor to the next ready thread.
func (k *Kernel) Yield() {
	k.Threads.Yield()
}

// Time returns the simulated clock.
func (k *Kernel) Time() int64 {
	return k.Machine.Timer.Time()
}

// NewLock allocates a lock whose waiters donate to its holder.
func (k *Kernel) NewLock() *synch.Lock {
	return synch.NewLock(k.Threads)
}

// NewCondition allocates a condition variable bound to lock.
func (k *Kernel) NewCondition(lock *synch.Lock) *synch.Condition {
	return synch.NewCondition(lock)
}

// NewCommunicator allocates a synchronous word channel.
func (k *Kernel) NewCommunicator() *synch.Communicator {
	return synch.NewCommunicator(k.Threads)
}

// Logger returns the kernel's component logger.
func (k *Kernel) Logger() *slog.Logger {
	return k.logger
}
