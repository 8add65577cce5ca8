package statechart

import "fmt"

// Status is the lifecycle phase of an interpreter.
type Status int32

const (
	// StatusIdle is a created interpreter that has not started.
	StatusIdle Status = iota
	// StatusRunning accepts and processes events.
	StatusRunning
	// StatusDone reached a top-level final state.
	StatusDone
	// StatusStopped was terminated by Stop.
	StatusStopped
	// StatusErrored hit a fatal guard or action failure.
	StatusErrored

	// statusStarting is the transient phase while Start enters the initial
	// configuration. Internal deliveries are queued; external sends are
	// still no-ops.
	statusStarting Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning, statusStarting:
		return "running"
	case StatusDone:
		return "done"
	case StatusStopped:
		return "stopped"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// FatalError reports a guard or action that panicked during a step. The
// interpreter moves to StatusErrored, cancels outstanding invocations and
// timers, and stops accepting events; the last successfully published
// snapshot remains the system of record.
type FatalError struct {
	Machine   string
	Stage     string // "guard", "exit", "action" or "entry"
	State     string // qualified name of the state or transition source
	Recovered any
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("statechart: machine %q: %s panicked in %q: %v", e.Machine, e.Stage, e.State, e.Recovered)
}
