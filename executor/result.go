package executor

import (
	"time"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateCreated State = iota
	StateLoading
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Result holds the outcome and metadata of one session run.
type Result struct {
	SessionID  string
	State      State
	Duration   time.Duration
	Operations int64 // host operations scheduled
	TimedOut   bool  // the drain timeout force-cancelled operations
	Error      error // every reported error, aggregated
}
