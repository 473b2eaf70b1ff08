package tui

import "time"

// ResultMsg carries a rendered result.
type ResultMsg struct {
	Text string
}

// TickMsg drives the clock and the frame counter.
type TickMsg time.Time

// StartedMsg reports that the worker is ready.
type StartedMsg struct{}

// DisabledMsg reports that the worker could not be started.
type DisabledMsg struct {
	Err error
}
