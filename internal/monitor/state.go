package monitor

import "fmt"

// State is a phase of the monitor loop
type State string

const (
	StateIdle         State = "idle"
	StatePolling      State = "polling"
	StateEvaluating   State = "evaluating"
	StateDispatching  State = "dispatching"
	StateSleeping     State = "sleeping"
	StateErrorBackoff State = "error_backoff"
)

// Stage names the step of a poll cycle that failed
type Stage string

const (
	StageLoadOffset Stage = "load_offset"
	StageRead       Stage = "read"
	StagePersist    Stage = "persist"
)

// CycleError is a recoverable failure of a poll cycle
// The loop backs off and retries; the in-memory offset is left unchanged
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
