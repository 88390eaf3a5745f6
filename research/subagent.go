package research

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"surveyor/agent"
	"surveyor/aitools"
	"surveyor/llm"
	"surveyor/plan"
	"surveyor/streamers"
)

// ToolsetBuilder constructs a fresh tool registry plus the completion tool
// for one subagent run. Each run gets its own instances so completion
// state is never shared between concurrent sub-tasks.
type ToolsetBuilder func() (*aitools.Registry, *aitools.CompleteTaskTool)

// SubagentRunner turns one SubTask into one conversation-loop run and
// normalizes whatever happened into a SubTaskResult.
type SubagentRunner struct {
	provider   llm.Provider
	tiers      ModelTiers
	budgets    Budgets
	newToolset ToolsetBuilder
	logger     hclog.Logger
	events     agent.EventLogger
	turnLogDir string
}

func NewSubagentRunner(provider llm.Provider, tiers ModelTiers, budgets Budgets, newToolset ToolsetBuilder, logger hclog.Logger) *SubagentRunner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SubagentRunner{
		provider:   provider,
		tiers:      tiers,
		budgets:    budgets,
		newToolset: newToolset,
		logger:     logger,
	}
}

// SetEventLogger attaches a structured event logger shared with the
// orchestrator; subagent events are tagged with their task id.
func (r *SubagentRunner) SetEventLogger(events agent.EventLogger) {
	r.events = events
}

// SetTurnLogDir enables per-task JSONL transcript logging. Each sub-task
// writes <dir>/<task_id>.jsonl.
func (r *SubagentRunner) SetTurnLogDir(dir string) {
	r.turnLogDir = dir
}

// Run executes one sub-task to termination. It never returns an error:
// loop failures, timeouts, and even panics in its own logic are absorbed
// into the result's status so sibling sub-tasks are unaffected.
func (r *SubagentRunner) Run(ctx context.Context, task plan.SubTask, handler streamers.ResearchHandler) (result SubTaskResult) {
	start := time.Now()
	result = SubTaskResult{TaskID: task.ID, Status: agent.StateError}

	defer func() {
		if rec := recover(); rec != nil {
			result.Status = agent.StateError
			result.ErrorMessage = fmt.Sprintf("subagent panicked: %v", rec)
		}
		result.ExecutionTime = time.Since(start)
	}()

	if handler == nil {
		handler = streamers.NullHandler{}
	}

	// Model tier and resource envelope follow the sub-task's own
	// complexity estimate, not the parent plan's score.
	complexity := estimateComplexity(task)
	model := r.tiers.ForComplexity(complexity)
	alloc := allocationFor(complexity)

	timeout := alloc.timeout
	if r.budgets.ConversationTimeout > 0 && r.budgets.ConversationTimeout < timeout {
		timeout = r.budgets.ConversationTimeout
	}

	registry, complete := r.newToolset()

	session := llm.NewSession(r.provider, model, subagentSystemPrompt)
	session.SetMaxTokens(alloc.tokenBudget)

	logger := r.logger.Named(task.ID)
	loop := agent.NewConversationLoop(session, registry, complete, agent.LoopConfig{
		MaxRounds:           r.budgets.MaxRounds,
		MaxToolCalls:        task.MaxSearchCalls,
		CallTimeout:         r.budgets.CallTimeout,
		ConversationTimeout: timeout,
	}, logger)
	loop.SetExecutor(aitools.NewExecutor(registry, r.budgets.MaxToolResultChars))

	if r.turnLogDir != "" {
		if tl, err := llm.NewTurnLogger(filepath.Join(r.turnLogDir, task.ID+".jsonl")); err == nil {
			defer tl.Close()
			loop.SetTurnLogger(tl)
		} else {
			logger.Warn("turn log disabled", "error", err)
		}
	}

	var events agent.EventLogger = &handlerEventLogger{taskID: task.ID, handler: handler}
	if r.events != nil {
		events = agent.NewContextEventLogger(fanoutEventLogger{r.events, events}, map[string]any{"task_id": task.ID})
	}
	loop.SetEventLogger(events)

	logger.Debug("subagent starting",
		"model", model,
		"complexity", complexity,
		"max_tool_calls", task.MaxSearchCalls)

	prompt := buildSubagentPrompt(task.ID, task.Objective, task.ExpectedOutput, task.SearchFocus, alloc.budgetHint)

	loopResult := loop.Run(ctx, prompt)

	result.Status = loopResult.State
	result.Findings = loopResult.Findings
	result.FinalResponse = loopResult.FinalText
	result.ToolCallsUsed = loopResult.ToolCallsUsed
	result.Conversation = loopResult.Messages
	result.ErrorMessage = loopResult.ErrorMessage

	return result
}

// handlerEventLogger forwards tool-call events to the research progress
// handler.
type handlerEventLogger struct {
	taskID  string
	handler streamers.ResearchHandler
}

func (l *handlerEventLogger) LogEvent(eventType string, data map[string]any) {
	if eventType != agent.EventToolCalls {
		return
	}
	tool, _ := data["tool"].(string)
	input, _ := data["input"].(string)
	l.handler.SubtaskToolCall(l.taskID, tool, input)
}

// fanoutEventLogger duplicates events to multiple sinks.
type fanoutEventLogger []agent.EventLogger

func (f fanoutEventLogger) LogEvent(eventType string, data map[string]any) {
	for _, l := range f {
		l.LogEvent(eventType, data)
	}
}
