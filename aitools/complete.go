package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// CompleteTaskName is the designated completion-signal tool name. Its
// successful invocation is the only in-band way for an agent to assert it
// is finished.
const CompleteTaskName = "complete_task"

// Findings is the structured payload of a completed research task
type Findings struct {
	Insights   string   `json:"insights"`
	Findings   []string `json:"findings"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// CompleteTaskCallback is called when the agent submits its findings
type CompleteTaskCallback func(f Findings)

// CompleteTaskTool lets the agent signal completion with structured
// findings. One instance serves exactly one conversation.
type CompleteTaskTool struct {
	mu         sync.Mutex
	findings   *Findings
	OnComplete CompleteTaskCallback
}

func NewCompleteTaskTool() *CompleteTaskTool {
	return &CompleteTaskTool{}
}

func (t *CompleteTaskTool) ToolName() string {
	return CompleteTaskName
}

func (t *CompleteTaskTool) ToolDescription() string {
	return `Signal that your research task is complete and submit your findings. You MUST call this tool exactly once, when you have gathered enough information to satisfy the task objective.

Parameters:
- insights: The key insights and conclusions of your research.
- findings: A list of specific, sourced facts you found.
- sources: The URLs of every source you relied on.
- confidence: Your confidence in the findings, from 0.0 to 1.0.`
}

func (t *CompleteTaskTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"insights": {
				Type:        TypeString,
				Description: "Key insights and conclusions from the research",
			},
			"findings": {
				Type:        TypeArray,
				Description: "Specific facts discovered, each attributable to a source",
				Items:       &Property{Type: TypeString},
			},
			"sources": {
				Type:        TypeArray,
				Description: "URLs of the sources used",
				Items:       &Property{Type: TypeString},
			},
			"confidence": {
				Type:        TypeNumber,
				Description: "Confidence in the findings, 0.0 to 1.0",
			},
		},
		Required: []string{"insights", "findings", "sources", "confidence"},
	}
}

func (t *CompleteTaskTool) Call(ctx context.Context, params string) (string, error) {
	var f Findings
	if err := json.Unmarshal([]byte(params), &f); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	if f.Confidence < 0 || f.Confidence > 1 {
		return "", fmt.Errorf("confidence must be between 0.0 and 1.0")
	}

	t.mu.Lock()
	t.findings = &f
	t.mu.Unlock()

	if t.OnComplete != nil {
		t.OnComplete(f)
	}

	ack, _ := json.Marshal(map[string]any{
		"status":         "task_completed",
		"findings_count": len(f.Findings),
		"sources_count":  len(f.Sources),
	})
	return string(ack), nil
}

// Findings returns the submitted findings, or nil if the agent never
// invoked the completion signal.
func (t *CompleteTaskTool) Findings() *Findings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findings
}
