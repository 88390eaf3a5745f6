package plan

import "fmt"

// DecompositionError reports an unparsable or structurally invalid planner
// response. It is fatal for the query: no plan is produced and no
// sub-tasks run.
type DecompositionError struct {
	Msg   string
	Cause error
}

func (e *DecompositionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task decomposition failed: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("task decomposition failed: %s", e.Msg)
}

func (e *DecompositionError) Unwrap() error {
	return e.Cause
}

func decompositionErr(format string, args ...any) *DecompositionError {
	return &DecompositionError{Msg: fmt.Sprintf(format, args...)}
}
