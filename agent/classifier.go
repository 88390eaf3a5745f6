package agent

import (
	"surveyor/aitools"
	"surveyor/llm"
)

// TerminalState is how a conversation loop ended.
type TerminalState string

const (
	StateCompleted      TerminalState = "completed"
	StateTimeout        TerminalState = "timeout"
	StateBudgetExceeded TerminalState = "budget_exceeded"
	StateError          TerminalState = "error"
)

// classification is the outcome of inspecting one round. Terminal
// recognition lives here and only here: plain text, the completion
// signal, and a task-ending error are all classified in one place.
type classification struct {
	terminal bool
	state    TerminalState
	errorMsg string
}

// classifyResponse inspects a model response before any tools run. A
// response with no tool calls is the out-of-band completion signal.
func classifyResponse(resp *llm.ChatResponse) classification {
	if !resp.HasToolCalls() {
		return classification{terminal: true, state: StateCompleted}
	}
	return classification{}
}

// classifyBatch inspects an executed tool batch. A successful invocation
// of the completion tool is the in-band completion signal; a failed one is
// a task-ending error.
func classifyBatch(calls []llm.ToolCall, results []llm.ToolResult) classification {
	byID := make(map[string]llm.ToolResult, len(results))
	for _, res := range results {
		byID[res.ToolUseID] = res
	}

	for _, call := range calls {
		if call.Name != aitools.CompleteTaskName {
			continue
		}
		res, ok := byID[call.ID]
		if !ok {
			continue
		}
		if res.IsError() {
			return classification{terminal: true, state: StateError, errorMsg: res.Error}
		}
		return classification{terminal: true, state: StateCompleted}
	}

	return classification{}
}
