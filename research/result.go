package research

import (
	"time"

	"surveyor/agent"
	"surveyor/aitools"
	"surveyor/llm"
	"surveyor/plan"
)

// SubTaskResult is the normalized outcome of running one sub-task,
// whatever terminal state its conversation loop reached. The aggregator
// never branches on loop-internal state.
type SubTaskResult struct {
	TaskID        string
	Status        agent.TerminalState
	Findings      *aitools.Findings // nil when the agent never signaled completion
	FinalResponse string            // last assistant text, best-effort
	ToolCallsUsed int
	Conversation  []llm.Message
	ExecutionTime time.Duration
	ErrorMessage  string
}

// Sources returns the result's source URLs, if any.
func (r *SubTaskResult) Sources() []string {
	if r.Findings == nil {
		return nil
	}
	return r.Findings.Sources
}

// Result is the complete outcome of one research run.
type Result struct {
	RunID          string
	Query          string
	Plan           *plan.TaskPlan
	SubtaskResults []SubTaskResult
	Essay          string
	Sources        []string
	StartedAt      time.Time
	Duration       time.Duration
}
