package sched

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Priority bounds for the priority scheduler.
const (
	PriorityMinimum = 0
	PriorityDefault = 1
	PriorityMaximum = 7
)

// Ticket bounds for the lottery scheduler.
const (
	TicketsMinimum = 1
	TicketsDefault = 1
	TicketsMaximum = math.MaxInt32
)

// Policy names accepted by PolicyByName.
const (
	PolicyPriority   = "priority"
	PolicyLottery    = "lottery"
	PolicyRoundRobin = "roundrobin"
)

// Policy parameterizes the generic wait queue.
//
// Combine folds a donated value into an accumulated one: a thread's
// effective value is its own value combined with the effective value of
// every non-empty transferring queue it owns, and a transferring queue's
// effective value is the combination of its waiters' effective values.
//
// Select picks the winning waiter given the waiters' effective values in
// arrival order. It is never called with an empty slice.
type Policy struct {
	Name    string
	Minimum int64
	Maximum int64
	Default int64
	Combine func(acc, v int64) int64
	Select  func(weights []int64) int
}

// PriorityPolicy returns the donating priority policy: donation takes the
// maximum, and the first waiter with the strictly greatest effective
// priority wins, so equal priorities are served in arrival order.
func PriorityPolicy() Policy {
	return Policy{
		Name:    PolicyPriority,
		Minimum: PriorityMinimum,
		Maximum: PriorityMaximum,
		Default: PriorityDefault,
		Combine: combineMax,
		Select:  selectMax,
	}
}

// LotteryPolicy returns the ticket policy: donation adds, and the winner is
// drawn with probability proportional to its share of the waiters' tickets.
func LotteryPolicy(rng *rand.Rand) Policy {
	return Policy{
		Name:    PolicyLottery,
		Minimum: TicketsMinimum,
		Maximum: TicketsMaximum,
		Default: TicketsDefault,
		Combine: combineSum,
		Select:  drawLottery(rng),
	}
}

// RoundRobinPolicy returns a FIFO policy with a single priority level.
func RoundRobinPolicy() Policy {
	return Policy{
		Name:    PolicyRoundRobin,
		Minimum: 0,
		Maximum: 0,
		Default: 0,
		Combine: combineMax,
		Select:  func([]int64) int { return 0 },
	}
}

// PolicyByName builds a policy from its configured name. seed only affects
// the lottery policy.
func PolicyByName(name string, seed uint64) (Policy, error) {
	switch name {
	case PolicyPriority:
		return PriorityPolicy(), nil
	case PolicyLottery:
		return LotteryPolicy(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))), nil
	case PolicyRoundRobin:
		return RoundRobinPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown scheduler policy %q", name)
	}
}

// Known reports whether name is an accepted policy name.
func Known(name string) bool {
	switch name {
	case PolicyPriority, PolicyLottery, PolicyRoundRobin:
		return true
	}
	return false
}

func combineMax(acc, v int64) int64 {
	if v > acc {
		return v
	}
	return acc
}

func combineSum(acc, v int64) int64 {
	return acc + v
}

func selectMax(weights []int64) int {
	best := 0
	for i := 1; i < len(weights); i++ {
		if weights[i] > weights[best] {
			best = i
		}
	}
	return best
}

// drawLottery draws r uniformly from [1, total] and walks the waiters,
// subtracting each one's tickets until r falls within a waiter's share.
// Only the aggregate is ever materialized.
func drawLottery(rng *rand.Rand) func([]int64) int {
	return func(weights []int64) int {
		var total int64
		for _, w := range weights {
			total += w
		}
		r := rng.Int64N(total) + 1
		for i, w := range weights {
			if r <= w {
				return i
			}
			r -= w
		}
		return len(weights) - 1
	}
}
