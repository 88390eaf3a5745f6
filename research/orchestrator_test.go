package research_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"surveyor/agent"
	"surveyor/aitools"
	"surveyor/llm"
	"surveyor/plan"
	"surveyor/research"
	"surveyor/store"
)

// pipelineProvider scripts all three phases behind one Provider. Planner
// calls carry no tools and get planJSON back; subagent calls carry tools
// and are answered with a scripted complete_task invocation matched by the
// task id embedded in the prompt; synthesis goes through ChatStream.
type pipelineProvider struct {
	mu             sync.Mutex
	planJSON       string
	planErr        error
	subagentInputs map[string]string // task id -> complete_task params JSON
	essay          string
	streamDelay    time.Duration
	subagentCalls  int
	streamCalls    int
}

func (p *pipelineProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(req.Tools) == 0 {
		if p.planErr != nil {
			return nil, p.planErr
		}
		return &llm.ChatResponse{Text: p.planJSON, StopReason: llm.StopEndTurn}, nil
	}

	var transcript strings.Builder
	for _, msg := range req.Messages {
		transcript.WriteString(msg.GetTextContent())
	}
	for taskID, input := range p.subagentInputs {
		if strings.Contains(transcript.String(), "Research task "+taskID+".") {
			p.subagentCalls++
			return &llm.ChatResponse{
				StopReason: llm.StopToolUse,
				ToolCalls: []llm.ToolCall{{
					ID:    "call_" + taskID,
					Name:  aitools.CompleteTaskName,
					Input: json.RawMessage(input),
				}},
			}, nil
		}
	}
	return nil, fmt.Errorf("no scripted subagent response for request")
}

func (p *pipelineProvider) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	p.mu.Lock()
	p.streamCalls++
	essay := p.essay
	delay := p.streamDelay
	p.mu.Unlock()

	ch := make(chan llm.StreamChunk, 2)
	if delay > 0 {
		go func() {
			defer close(ch)
			select {
			case <-time.After(delay):
				ch <- llm.StreamChunk{Content: essay}
				ch <- llm.StreamChunk{Done: true}
			case <-ctx.Done():
				ch <- llm.StreamChunk{Error: ctx.Err()}
			}
		}()
		return ch, nil
	}

	ch <- llm.StreamChunk{Content: essay}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// runRecorder captures the full handler event stream. Subtask callbacks
// arrive from concurrent goroutines.
type runRecorder struct {
	mu       sync.Mutex
	events   []string
	runID    string
	essay    string
	sources  []string
	failures map[string]error
	runErr   error
}

func newRunRecorder() *runRecorder {
	return &runRecorder{failures: make(map[string]error)}
}

func (r *runRecorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *runRecorder) RunStarted(runID, query string) {
	r.mu.Lock()
	r.runID = runID
	r.mu.Unlock()
	r.record("run_started")
}

func (r *runRecorder) RunCompleted(runID, essay string, sources []string) {
	r.mu.Lock()
	r.essay = essay
	r.sources = sources
	r.mu.Unlock()
	r.record("run_completed")
}

func (r *runRecorder) RunFailed(runID string, err error) {
	r.mu.Lock()
	r.runErr = err
	r.mu.Unlock()
	r.record("run_failed")
}

func (r *runRecorder) PlanReady(strategy, queryType string, complexity, subtaskCount int) {
	r.record("plan_ready")
}

func (r *runRecorder) SubtaskStarted(taskID, objective string) {
	r.record("subtask_started:" + taskID)
}

func (r *runRecorder) SubtaskToolCall(taskID, toolName, input string) {
	r.record("tool_call:" + taskID + ":" + toolName)
}

func (r *runRecorder) SubtaskCompleted(taskID, status string, toolCallsUsed int) {
	r.record("subtask_completed:" + taskID + ":" + status)
}

func (r *runRecorder) SubtaskFailed(taskID string, err error) {
	r.mu.Lock()
	r.failures[taskID] = err
	r.mu.Unlock()
	r.record("subtask_failed:" + taskID)
}

func (r *runRecorder) SynthesisStarted(sourceCount int) {
	r.record("synthesis_started")
}

func (r *runRecorder) EssayChunk(chunk string) {}

func (r *runRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

const twoTaskPlanJSON = `{
	"query_type": "breadth_first",
	"complexity": 2,
	"strategy": "split by region",
	"subtasks": [
		{
			"id": "task_001",
			"objective": "Survey European solar growth",
			"search_queries": ["europe solar capacity"],
			"expected_output": "Capacity figures with sources",
			"max_searches": 3
		},
		{
			"id": "task_002",
			"objective": "Survey US solar growth",
			"search_queries": ["us solar capacity"],
			"expected_output": "Capacity figures with sources",
			"max_searches": 3
		}
	]
}`

func completeParamsJSON(sources ...string) string {
	params, _ := json.Marshal(map[string]any{
		"insights":   "capacity is growing",
		"findings":   []string{"a sourced fact"},
		"sources":    sources,
		"confidence": 0.85,
	})
	return string(params)
}

var _ = Describe("Orchestrator", func() {
	var (
		provider *pipelineProvider
		handler  *runRecorder
		bundle   *store.Bundle
		budgets  research.Budgets
	)

	newOrchestrator := func() *research.Orchestrator {
		tiers := research.ModelTiers{Light: "light-model", Medium: "medium-model", Heavy: "heavy-model"}
		newToolset := func() (*aitools.Registry, *aitools.CompleteTaskTool) {
			complete := aitools.NewCompleteTaskTool()
			return aitools.NewRegistry(complete), complete
		}

		planner := plan.NewPlanner(provider, "planner-model", 2000, plan.Limits{MaxSubagents: 4, MaxSearchesPerAgent: 10}, nil)
		runner := research.NewSubagentRunner(provider, tiers, budgets, newToolset, nil)
		synth := research.NewSynthesizer(provider, "synth-model", 2000, nil)
		synth.SetRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

		orch := research.NewOrchestrator(planner, runner, synth, budgets, nil)
		orch.SetStore(bundle)
		return orch
	}

	BeforeEach(func() {
		handler = newRunRecorder()
		bundle = store.NewMemoryBundle()
		budgets = research.Budgets{
			MaxSubagents:        4,
			MaxSearchesPerAgent: 10,
			MaxRounds:           5,
			SynthesisTimeout:    5 * time.Second,
			SynthesisMaxTokens:  2000,
			MaxToolResultChars:  4000,
		}
		provider = &pipelineProvider{
			planJSON: twoTaskPlanJSON,
			subagentInputs: map[string]string{
				"task_001": completeParamsJSON("https://example.com/eu", "https://example.com/shared"),
				"task_002": completeParamsJSON("https://example.com/us", "https://example.com/shared"),
			},
			essay: "<essay>Global solar capacity keeps climbing.</essay>",
		}
	})

	It("runs plan, subagents, and synthesis end to end", func() {
		result, err := newOrchestrator().Run(context.Background(), "how fast is solar growing", handler)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Essay).To(Equal("Global solar capacity keeps climbing."))
		Expect(result.Plan.Strategy).To(Equal("split by region"))
		Expect(result.SubtaskResults).To(HaveLen(2))
		for _, res := range result.SubtaskResults {
			Expect(res.Status).To(Equal(agent.StateCompleted))
			Expect(res.ToolCallsUsed).To(Equal(1))
		}
		Expect(result.Sources).To(HaveLen(3), "shared source should be deduplicated")
		Expect(result.Sources).To(ContainElements(
			"https://example.com/eu",
			"https://example.com/us",
			"https://example.com/shared",
		))
	})

	It("runs a straightforward single-task plan with one subagent and one synthesis call", func() {
		provider.planJSON = `{
			"query_type": "straightforward",
			"complexity": 1,
			"strategy": "single lookup",
			"subtasks": [
				{
					"id": "task_001",
					"objective": "Find the population of Tokyo",
					"expected_output": "A population figure with a source",
					"max_searches": 2
				}
			]
		}`

		result, err := newOrchestrator().Run(context.Background(), "What is the population of Tokyo?", handler)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.SubtaskResults).To(HaveLen(1))
		Expect(provider.subagentCalls).To(Equal(1))
		Expect(provider.streamCalls).To(Equal(1))
	})

	It("emits lifecycle events in phase order", func() {
		_, err := newOrchestrator().Run(context.Background(), "how fast is solar growing", handler)
		Expect(err).ToNot(HaveOccurred())

		events := handler.snapshot()
		Expect(events[0]).To(Equal("run_started"))
		Expect(events[1]).To(Equal("plan_ready"))
		Expect(events[len(events)-1]).To(Equal("run_completed"))
		Expect(events).To(ContainElements(
			"subtask_started:task_001",
			"subtask_started:task_002",
			"subtask_completed:task_001:completed",
			"subtask_completed:task_002:completed",
		))

		// Synthesis starts only after every subagent has terminated.
		synthIdx := -1
		for i, e := range events {
			if e == "synthesis_started" {
				synthIdx = i
			}
		}
		Expect(synthIdx).To(BeNumerically(">", 0))
		for i, e := range events {
			if strings.HasPrefix(e, "subtask_completed:") {
				Expect(i).To(BeNumerically("<", synthIdx))
			}
		}
	})

	It("persists the run, its sub-task results, and its sources", func() {
		result, err := newOrchestrator().Run(context.Background(), "how fast is solar growing", handler)
		Expect(err).ToNot(HaveOccurred())

		run, err := bundle.Runs.GetRun(result.RunID)
		Expect(err).ToNot(HaveOccurred())
		Expect(run.Status).To(Equal("completed"))
		Expect(run.Query).To(Equal("how fast is solar growing"))
		Expect(run.Essay).To(Equal("Global solar capacity keeps climbing."))
		Expect(run.Complexity).To(Equal(2))

		records, err := bundle.Results.GetResultsByRun(result.RunID)
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(2))
		for _, rec := range records {
			Expect(rec.Status).To(Equal("completed"))
			Expect(rec.Insights).To(Equal("capacity is growing"))
			Expect(rec.ConversationJSON).ToNot(BeEmpty())
		}

		srcs, err := bundle.Sources.GetSourcesByRun(result.RunID)
		Expect(err).ToNot(HaveOccurred())
		Expect(srcs).To(HaveLen(4), "source audit keeps per-task duplicates")
	})

	It("aborts the run when decomposition fails", func() {
		provider.planErr = errors.New("planner unavailable")

		result, err := newOrchestrator().Run(context.Background(), "q", handler)

		Expect(result).To(BeNil())
		var decompErr *plan.DecompositionError
		Expect(errors.As(err, &decompErr)).To(BeTrue())
		Expect(handler.runErr).To(MatchError(err))
		Expect(handler.snapshot()).To(ContainElement("run_failed"))

		runs, listErr := bundle.Runs.ListRuns(10)
		Expect(listErr).ToNot(HaveOccurred())
		Expect(runs).To(BeEmpty(), "no run is recorded before a plan exists")
	})

	It("isolates a failed sub-task and still synthesizes the rest", func() {
		// Out-of-range confidence makes complete_task fail, which ends
		// that sub-task in an error state.
		provider.subagentInputs["task_002"] = `{"insights":"x","findings":[],"sources":[],"confidence":5}`

		result, err := newOrchestrator().Run(context.Background(), "how fast is solar growing", handler)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Essay).ToNot(BeEmpty())

		statuses := map[string]agent.TerminalState{}
		for _, res := range result.SubtaskResults {
			statuses[res.TaskID] = res.Status
		}
		Expect(statuses["task_001"]).To(Equal(agent.StateCompleted))
		Expect(statuses["task_002"]).To(Equal(agent.StateError))

		Expect(handler.failures).To(HaveKey("task_002"))
		Expect(handler.failures["task_002"].Error()).To(ContainSubstring("task_002"))
		Expect(result.Sources).To(Equal([]string{"https://example.com/eu", "https://example.com/shared"}))
	})

	It("marks the run failed when synthesis has nothing to work with", func() {
		provider.subagentInputs = map[string]string{
			"task_001": completeParamsJSON(),
			"task_002": completeParamsJSON(),
		}

		result, err := newOrchestrator().Run(context.Background(), "q", handler)

		Expect(result).To(BeNil())
		Expect(errors.Is(err, research.ErrNoSources)).To(BeTrue())
		Expect(handler.snapshot()).To(ContainElement("run_failed"))

		runs, listErr := bundle.Runs.ListRuns(10)
		Expect(listErr).ToNot(HaveOccurred())
		Expect(runs).To(HaveLen(1))
		Expect(runs[0].Status).To(Equal("failed"))
	})

	It("cuts off a stalled synthesis stream at the synthesis budget", func() {
		provider.streamDelay = 500 * time.Millisecond
		budgets.SynthesisTimeout = 30 * time.Millisecond

		start := time.Now()
		result, err := newOrchestrator().Run(context.Background(), "q", handler)
		elapsed := time.Since(start)

		Expect(result).To(BeNil())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		Expect(elapsed).To(BeNumerically("<", 400*time.Millisecond))

		runs, listErr := bundle.Runs.ListRuns(10)
		Expect(listErr).ToNot(HaveOccurred())
		Expect(runs).To(HaveLen(1))
		Expect(runs[0].Status).To(Equal("failed"))
	})
})
