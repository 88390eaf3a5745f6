package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"surveyor/aitools"
	"surveyor/llm"
)

// Event types emitted during loop execution
const (
	EventLoopStarted    = "loop_started"
	EventModelResponse  = "model_response"
	EventToolCalls      = "tool_calls"
	EventToolResults    = "tool_results"
	EventLoopTerminated = "loop_terminated"
)

// LoopConfig bounds one conversation. The three limits are independent
// circuit breakers: a hanging model call, a slow sequence of short calls,
// and a model that requests tools forever are distinct failure modes.
type LoopConfig struct {
	MaxRounds           int           // iteration budget
	MaxToolCalls        int           // hard tool-call ceiling (0 = unlimited)
	CallTimeout         time.Duration // per model round-trip
	ConversationTimeout time.Duration // wall clock for the whole loop
}

// LoopResult is the well-formed terminal artifact of one loop run. Every
// run produces one, whatever the terminal state.
type LoopResult struct {
	State         TerminalState
	FinalText     string
	Findings      *aitools.Findings
	ToolCallsUsed int
	Rounds        int
	Messages      []llm.Message
	ErrorMessage  string
}

// ConversationLoop drives one model conversation through repeated
// request/tool-execution cycles until a terminal condition. The loop
// exclusively owns its session's transcript.
type ConversationLoop struct {
	session  *llm.Session
	registry *aitools.Registry
	executor *aitools.Executor
	complete *aitools.CompleteTaskTool
	cfg      LoopConfig

	logger  hclog.Logger
	events  EventLogger
	turnLog *llm.TurnLogger
}

// NewConversationLoop wires a loop over a session and a tool registry.
// complete may be nil for tool-less conversations (e.g. synthesis).
func NewConversationLoop(session *llm.Session, registry *aitools.Registry, complete *aitools.CompleteTaskTool, cfg LoopConfig, logger hclog.Logger) *ConversationLoop {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	loop := &ConversationLoop{
		session:  session,
		registry: registry,
		complete: complete,
		cfg:      cfg,
		logger:   logger,
	}
	if registry != nil {
		loop.executor = aitools.NewExecutor(registry, 0)
		session.SetTools(registry.Definitions())
	}
	return loop
}

// SetExecutor overrides the default executor. Used to apply a non-default
// truncation limit.
func (l *ConversationLoop) SetExecutor(executor *aitools.Executor) {
	l.executor = executor
}

// SetEventLogger attaches a structured event logger for audit.
func (l *ConversationLoop) SetEventLogger(events EventLogger) {
	l.events = events
}

// SetTurnLogger attaches a per-turn transcript logger.
func (l *ConversationLoop) SetTurnLogger(tl *llm.TurnLogger) {
	l.turnLog = tl
}

// Run seeds the conversation with the task prompt and drives it to a
// terminal state. The returned result is always well formed; orchestration
// failures are reported through StateError rather than a panic or a bare
// error.
func (l *ConversationLoop) Run(ctx context.Context, prompt string) *LoopResult {
	result := &LoopResult{State: StateError}

	defer func() {
		if r := recover(); r != nil {
			result.State = StateError
			result.ErrorMessage = fmt.Sprintf("conversation loop panicked: %v", r)
		}
		result.Messages = l.session.SnapshotMessages()
		if l.complete != nil && result.Findings == nil {
			result.Findings = l.complete.Findings()
		}
		l.logEvent(EventLoopTerminated, map[string]any{
			"state":           string(result.State),
			"rounds":          result.Rounds,
			"tool_calls_used": result.ToolCallsUsed,
		})
	}()

	l.logEvent(EventLoopStarted, map[string]any{
		"max_rounds":     l.cfg.MaxRounds,
		"max_tool_calls": l.cfg.MaxToolCalls,
	})

	deadline := time.Time{}
	if l.cfg.ConversationTimeout > 0 {
		deadline = time.Now().Add(l.cfg.ConversationTimeout)
	}

	first := true
	var lastText string

	for round := 1; ; round++ {
		// Conversation-level wall clock, checked at the top of every
		// round. Once it fires, no further tool executions start.
		if !deadline.IsZero() && time.Now().After(deadline) {
			result.State = StateTimeout
			result.FinalText = lastText
			result.Rounds = round - 1
			return result
		}

		if err := ctx.Err(); err != nil {
			result.State = StateError
			result.ErrorMessage = err.Error()
			result.FinalText = lastText
			result.Rounds = round - 1
			return result
		}

		if l.cfg.MaxRounds > 0 && round > l.cfg.MaxRounds {
			result.State = StateBudgetExceeded
			result.FinalText = lastText
			result.Rounds = round - 1
			return result
		}

		result.Rounds = round

		resp, err := l.sendRound(ctx, prompt, first)
		first = false
		if err != nil {
			if isCallTimeout(ctx, err) {
				result.State = StateTimeout
			} else {
				result.State = StateError
				result.ErrorMessage = err.Error()
			}
			result.FinalText = lastText
			return result
		}

		if resp.Text != "" {
			lastText = resp.Text
		}
		l.logEvent(EventModelResponse, map[string]any{
			"round":       round,
			"stop_reason": string(resp.StopReason),
			"tool_calls":  len(resp.ToolCalls),
		})
		if l.turnLog != nil {
			l.turnLog.LogTurn("model_response", l.session.SnapshotMessages())
		}

		if c := classifyResponse(resp); c.terminal {
			result.State = c.state
			result.FinalText = resp.Text
			return result
		}

		// Tool-call ceiling is enforced here, not trusted to the prompt.
		if l.cfg.MaxToolCalls > 0 && result.ToolCallsUsed+len(resp.ToolCalls) > l.cfg.MaxToolCalls {
			result.State = StateBudgetExceeded
			result.ErrorMessage = "max_tool_calls_exceeded"
			result.FinalText = lastText
			return result
		}

		if l.executor == nil {
			result.State = StateError
			result.ErrorMessage = fmt.Sprintf("model requested tools but none are registered (first: %s)", resp.ToolCalls[0].Name)
			return result
		}

		for _, call := range resp.ToolCalls {
			l.logEvent(EventToolCalls, map[string]any{
				"round": round,
				"tool":  call.Name,
				"id":    call.ID,
				"input": string(call.Input),
			})
		}

		results := l.executor.Execute(ctx, resp.ToolCalls)
		l.session.AppendToolResults(results)
		result.ToolCallsUsed += len(resp.ToolCalls)

		errCount := 0
		for _, res := range results {
			if res.IsError() {
				errCount++
			}
		}
		l.logEvent(EventToolResults, map[string]any{
			"round":  round,
			"count":  len(results),
			"errors": errCount,
		})
		if l.turnLog != nil {
			l.turnLog.LogTurn("tool_results", l.session.SnapshotMessages())
		}

		if c := classifyBatch(resp.ToolCalls, results); c.terminal {
			result.State = c.state
			result.ErrorMessage = c.errorMsg
			result.FinalText = lastText
			return result
		}
	}
}

// sendRound issues one bounded model round-trip. The first round seeds the
// conversation with the task prompt; later rounds resume over the
// transcript.
func (l *ConversationLoop) sendRound(ctx context.Context, prompt string, first bool) (*llm.ChatResponse, error) {
	callCtx := ctx
	if l.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.cfg.CallTimeout)
		defer cancel()
	}

	if first {
		return l.session.Send(callCtx, prompt)
	}
	return l.session.Resume(callCtx)
}

// isCallTimeout distinguishes a per-call deadline from a parent-context
// cancellation carrying the same error value.
func isCallTimeout(parent context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}

func (l *ConversationLoop) logEvent(eventType string, data map[string]any) {
	l.logger.Debug(eventType, "data", data)
	if l.events != nil {
		l.events.LogEvent(eventType, data)
	}
}
