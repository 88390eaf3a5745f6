package research

import (
	"errors"
	"fmt"
)

// ErrNoSources signals that synthesis was requested with zero research
// sources across all sub-tasks. A reportable failure, not an empty essay.
var ErrNoSources = errors.New("no research sources found")

// OrchestratorError is an orchestration-level failure tagged with the
// task that was running when it occurred, if any.
type OrchestratorError struct {
	Msg    string
	TaskID string
	Cause  error
}

func (e *OrchestratorError) Error() string {
	msg := e.Msg
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s (task %s)", msg, e.TaskID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("orchestrator error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("orchestrator error: %s", msg)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Cause
}

// SynthesisError reports a failure to produce the final essay.
type SynthesisError struct {
	Msg   string
	Cause error
}

func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("synthesis failed: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("synthesis failed: %s", e.Msg)
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}
