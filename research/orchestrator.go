package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"surveyor/agent"
	"surveyor/plan"
	"surveyor/store"
	"surveyor/streamers"
)

// Event types emitted during run execution
const (
	EventRunStarted       = "run_started"
	EventPlanReady        = "plan_ready"
	EventSubtaskStarted   = "subtask_started"
	EventSubtaskFinished  = "subtask_finished"
	EventSynthesisStarted = "synthesis_started"
	EventRunCompleted     = "run_completed"
	EventRunFailed        = "run_failed"
)

// Orchestrator executes one research query end to end: plan, parallel
// subagents, synthesis. The three phases are strictly sequential;
// synthesis never starts before every dispatched subagent has terminated.
type Orchestrator struct {
	planner   *plan.Planner
	subagents *SubagentRunner
	synth     *Synthesizer
	budgets   Budgets

	bundle *store.Bundle // optional audit store
	logger hclog.Logger
	events agent.EventLogger
}

func NewOrchestrator(planner *plan.Planner, subagents *SubagentRunner, synth *Synthesizer, budgets Budgets, logger hclog.Logger) *Orchestrator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	o := &Orchestrator{
		planner:   planner,
		subagents: subagents,
		synth:     synth,
		budgets:   budgets,
		logger:    logger,
	}
	o.events = agent.NewHclogEventLogger(logger.Named("events"))
	return o
}

// SetStore attaches an audit store. Runs, sub-task results, and sources
// are persisted as they complete; persistence failures are logged, never
// fatal to the run.
func (o *Orchestrator) SetStore(bundle *store.Bundle) {
	o.bundle = bundle
}

// Run executes the full pipeline for one query.
func (o *Orchestrator) Run(ctx context.Context, query string, handler streamers.ResearchHandler) (*Result, error) {
	if handler == nil {
		handler = streamers.NullHandler{}
	}

	runID := uuid.New().String()
	start := time.Now()

	handler.RunStarted(runID, query)
	o.events.LogEvent(EventRunStarted, map[string]any{"run_id": runID, "query": query})

	// Phase 1: decompose. A decomposition error aborts the whole query.
	taskPlan, err := o.planner.Analyze(ctx, query, start)
	if err != nil {
		handler.RunFailed(runID, err)
		o.events.LogEvent(EventRunFailed, map[string]any{"run_id": runID, "error": err.Error()})
		return nil, err
	}

	handler.PlanReady(taskPlan.Strategy, string(taskPlan.QueryType), taskPlan.Complexity, len(taskPlan.Subtasks))
	o.events.LogEvent(EventPlanReady, map[string]any{
		"run_id":     runID,
		"query_type": string(taskPlan.QueryType),
		"complexity": taskPlan.Complexity,
		"subtasks":   len(taskPlan.Subtasks),
	})
	o.saveRun(runID, query, taskPlan)

	// Phase 2: dispatch every sub-task in parallel. Failure isolation is
	// absolute: a sub-task can only ever contribute a status-tagged
	// result, never abort a sibling.
	results := o.runSubtasks(ctx, runID, taskPlan.Subtasks, handler)

	// Phase 3: synthesize exactly once, now that every sub-task is
	// terminal. The synthesis budget bounds the whole phase including a
	// stalled stream.
	synthCtx := ctx
	if o.budgets.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, o.budgets.SynthesisTimeout)
		defer cancel()
	}
	essay, sources, err := o.synth.Synthesize(synthCtx, query, results, handler)
	if err != nil {
		o.completeRun(runID, "failed", "", time.Since(start))
		handler.RunFailed(runID, err)
		o.events.LogEvent(EventRunFailed, map[string]any{"run_id": runID, "error": err.Error()})
		return nil, fmt.Errorf("query %q: %w", query, err)
	}

	duration := time.Since(start)
	o.completeRun(runID, "completed", essay, duration)
	handler.RunCompleted(runID, essay, sources)
	o.events.LogEvent(EventRunCompleted, map[string]any{
		"run_id":      runID,
		"duration_ms": duration.Milliseconds(),
		"sources":     len(sources),
	})

	return &Result{
		RunID:          runID,
		Query:          query,
		Plan:           taskPlan,
		SubtaskResults: results,
		Essay:          essay,
		Sources:        sources,
		StartedAt:      start,
		Duration:       duration,
	}, nil
}

// runSubtasks runs all sub-tasks concurrently and blocks until every one
// has reached a terminal state.
func (o *Orchestrator) runSubtasks(ctx context.Context, runID string, subtasks []plan.SubTask, handler streamers.ResearchHandler) []SubTaskResult {
	results := make([]SubTaskResult, len(subtasks))

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, task := range subtasks {
		task := task
		i := i

		handler.SubtaskStarted(task.ID, task.Objective)
		o.events.LogEvent(EventSubtaskStarted, map[string]any{
			"run_id":  runID,
			"task_id": task.ID,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()

			result := o.subagents.Run(ctx, task, handler)

			mu.Lock()
			results[i] = result
			mu.Unlock()

			if result.Status == agent.StateError && result.ErrorMessage != "" {
				handler.SubtaskFailed(task.ID, &OrchestratorError{Msg: result.ErrorMessage, TaskID: task.ID})
			}
			handler.SubtaskCompleted(task.ID, string(result.Status), result.ToolCallsUsed)
			o.events.LogEvent(EventSubtaskFinished, map[string]any{
				"run_id":     runID,
				"task_id":    task.ID,
				"status":     string(result.Status),
				"tool_calls": result.ToolCallsUsed,
			})
			o.saveResult(runID, result)
		}()
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) saveRun(runID, query string, taskPlan *plan.TaskPlan) {
	if o.bundle == nil {
		return
	}
	err := o.bundle.Runs.CreateRun(store.Run{
		ID:         runID,
		Query:      query,
		QueryType:  string(taskPlan.QueryType),
		Complexity: taskPlan.Complexity,
		Strategy:   taskPlan.Strategy,
		Status:     "running",
		StartedAt:  time.Now(),
	})
	if err != nil {
		o.logger.Warn("failed to persist run", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) completeRun(runID, status, essay string, duration time.Duration) {
	if o.bundle == nil {
		return
	}
	if err := o.bundle.Runs.CompleteRun(runID, status, essay, duration.Milliseconds()); err != nil {
		o.logger.Warn("failed to complete run record", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) saveResult(runID string, result SubTaskResult) {
	if o.bundle == nil {
		return
	}

	rec := store.SubtaskRecord{
		RunID:         runID,
		TaskID:        result.TaskID,
		Status:        string(result.Status),
		ToolCallsUsed: result.ToolCallsUsed,
		ErrorMessage:  result.ErrorMessage,
		ExecutionMs:   result.ExecutionTime.Milliseconds(),
	}
	if result.Findings != nil {
		rec.Insights = result.Findings.Insights
		rec.Confidence = result.Findings.Confidence
	}
	if conversation, err := json.Marshal(result.Conversation); err == nil {
		rec.ConversationJSON = string(conversation)
	}

	if err := o.bundle.Results.SaveResult(rec); err != nil {
		o.logger.Warn("failed to persist subtask result", "task_id", result.TaskID, "error", err)
	}
	if sources := result.Sources(); len(sources) > 0 {
		if err := o.bundle.Sources.AppendSources(runID, result.TaskID, sources); err != nil {
			o.logger.Warn("failed to persist sources", "task_id", result.TaskID, "error", err)
		}
	}
}
