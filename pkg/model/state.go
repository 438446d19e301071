package model

import "strings"

// RunState is the lifecycle state of a recorded self-test run.
type RunState string

const (
	RunStateRunning RunState = "RUNNING"
	RunStatePassed  RunState = "PASSED"
	RunStateFailed  RunState = "FAILED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run has finished.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStatePassed, RunStateFailed:
		return true
	}
	return false
}

// ValidRunTransitions defines the allowed state transitions for runs.
var ValidRunTransitions = map[RunState][]RunState{
	RunStateRunning: {RunStatePassed, RunStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseRunState accepts a state name in any case. The empty string and
// unknown names report false.
func ParseRunState(s string) (RunState, bool) {
	switch RunState(strings.ToUpper(s)) {
	case RunStateRunning:
		return RunStateRunning, true
	case RunStatePassed:
		return RunStatePassed, true
	case RunStateFailed:
		return RunStateFailed, true
	}
	return "", false
}

