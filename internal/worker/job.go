package worker

import (
	"time"
)

// Reasons a run is requested.
const (
	ReasonStartup  = "startup"
	ReasonSchedule = "schedule"
	ReasonReload   = "reload"
)

// Job asks the worker for one retention run.
type Job struct {
	Reason string
	Queued time.Time
}
