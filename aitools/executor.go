package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"surveyor/llm"
)

// DefaultMaxResultChars bounds how much of a tool result is re-inserted
// into the conversation.
const DefaultMaxResultChars = 4000

// Executor runs batches of model-requested tool calls against a Registry.
// Calls in one batch execute concurrently; a failure in one call never
// aborts its siblings.
type Executor struct {
	registry       *Registry
	maxResultChars int
}

// NewExecutor creates an executor over the given registry. maxResultChars
// bounds serialized result content; zero applies DefaultMaxResultChars.
func NewExecutor(registry *Registry, maxResultChars int) *Executor {
	if maxResultChars <= 0 {
		maxResultChars = DefaultMaxResultChars
	}
	return &Executor{registry: registry, maxResultChars: maxResultChars}
}

// Execute runs every call in the batch and returns exactly one result per
// input call, in input order. Callers re-associate by ToolUseID rather than
// position when pairing results back to calls.
func (e *Executor) Execute(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

// executeOne runs a single call with full error isolation: unknown tools,
// argument failures, tool errors, and panics all become error results.
func (e *Executor) executeOne(ctx context.Context, call llm.ToolCall) (result llm.ToolResult) {
	result.ToolUseID = call.ID

	defer func() {
		if r := recover(); r != nil {
			result.Content = ""
			result.Error = fmt.Sprintf("Tool '%s' panicked: %v", call.Name, r)
		}
	}()

	tool := e.registry.Get(call.Name)
	if tool == nil {
		result.Error = fmt.Sprintf("Unknown tool: %s", call.Name)
		return result
	}

	params, err := normalizeParams(call.Input)
	if err != nil {
		result.Error = fmt.Sprintf("Invalid arguments for tool '%s': %v", call.Name, err)
		return result
	}

	content, err := tool.Call(ctx, params)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Content = e.truncate(content)
	return result
}

// normalizeParams accepts tool input either as a JSON object or as a JSON
// string containing a serialized object, and returns the object form.
func normalizeParams(input json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(input))
	if trimmed == "" {
		return "{}", nil
	}

	if strings.HasPrefix(trimmed, "\"") {
		var inner string
		if err := json.Unmarshal(input, &inner); err != nil {
			return "", err
		}
		trimmed = strings.TrimSpace(inner)
		if trimmed == "" {
			return "{}", nil
		}
	}

	if !json.Valid([]byte(trimmed)) {
		return "", fmt.Errorf("input is not valid JSON")
	}

	return trimmed, nil
}

// truncate bounds content length without corrupting the cut point; the
// marker makes truncation visible to the model.
func (e *Executor) truncate(content string) string {
	if len(content) <= e.maxResultChars {
		return content
	}
	cut := e.maxResultChars
	// Back off a partial UTF-8 sequence at the cut point.
	for cut > 0 && (content[cut]&0xC0) == 0x80 {
		cut--
	}
	return content[:cut] + "... [truncated]"
}
