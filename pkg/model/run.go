package model

import "time"

// Run is one recorded self-test scenario execution.
type Run struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	Scheduler  string     `json:"scheduler"`
	Seed       uint64     `json:"seed"`
	State      RunState   `json:"state"`
	Detail     string     `json:"detail,omitempty"`
	Ticks      int64      `json:"ticks"`
	Switches   uint64     `json:"switches"`
	EventCount int        `json:"event_count"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ThreadEvent is one kernel thread lifecycle event at a simulated tick.
type ThreadEvent struct {
	Seq      int    `json:"seq"`
	Tick     int64  `json:"tick"`
	ThreadID int    `json:"thread_id"`
	Thread   string `json:"thread"`
	Kind     string `json:"kind"`
}
