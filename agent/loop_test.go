package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"surveyor/agent"
	"surveyor/aitools"
	"surveyor/llm"
)

// scriptedProvider returns canned responses in order. It fails the test if
// the loop asks for more rounds than were scripted.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	delay     time.Duration
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls >= len(p.responses) {
		return nil, errors.New("no more scripted responses")
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Text: text, StopReason: llm.StopEndTurn}
}

func toolResponse(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{ToolCalls: calls, StopReason: llm.StopToolUse}
}

// searchStub stands in for a research tool.
type searchStub struct{}

func (t *searchStub) ToolName() string        { return "web_search" }
func (t *searchStub) ToolDescription() string { return "stub search" }
func (t *searchStub) ToolPayloadSchema() aitools.Schema {
	return aitools.Schema{Type: aitools.TypeObject, Properties: aitools.PropertyMap{}}
}
func (t *searchStub) Call(ctx context.Context, params string) (string, error) {
	return `{"results":[{"title":"result","url":"https://example.com"}]}`, nil
}

const completeParams = `{
	"insights": "enough gathered",
	"findings": ["fact one"],
	"sources": ["https://example.com"],
	"confidence": 0.7
}`

func newLoop(provider llm.Provider, cfg agent.LoopConfig) (*agent.ConversationLoop, *aitools.CompleteTaskTool) {
	complete := aitools.NewCompleteTaskTool()
	registry := aitools.NewRegistry(&searchStub{}, complete)
	session := llm.NewSession(provider, "test-model", "you are a researcher")
	return agent.NewConversationLoop(session, registry, complete, cfg, nil), complete
}

var _ = Describe("ConversationLoop", func() {
	var cfg agent.LoopConfig

	BeforeEach(func() {
		cfg = agent.LoopConfig{
			MaxRounds:           10,
			MaxToolCalls:        10,
			CallTimeout:         time.Second,
			ConversationTimeout: 5 * time.Second,
		}
	})

	It("treats a tool-less response as completion", func() {
		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			textResponse("Here is everything I found."),
		}}
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateCompleted))
		Expect(result.FinalText).To(Equal("Here is everything I found."))
		Expect(result.Rounds).To(Equal(1))
		Expect(result.ToolCallsUsed).To(BeZero())
	})

	It("executes tool rounds until the completion signal", func() {
		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			toolResponse(llm.ToolCall{ID: "c1", Name: "web_search", Input: json.RawMessage(`{"query":"a"}`)}),
			toolResponse(llm.ToolCall{ID: "c2", Name: "web_search", Input: json.RawMessage(`{"query":"b"}`)}),
			toolResponse(llm.ToolCall{ID: "c3", Name: "complete_task", Input: json.RawMessage(completeParams)}),
		}}
		loop, complete := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateCompleted))
		Expect(result.ToolCallsUsed).To(Equal(3))
		Expect(result.Rounds).To(Equal(3))

		Expect(complete.Findings()).NotTo(BeNil())
		Expect(result.Findings).NotTo(BeNil())
		Expect(result.Findings.Insights).To(Equal("enough gathered"))
		Expect(result.Findings.Sources).To(Equal([]string{"https://example.com"}))
	})

	It("records the full transcript", func() {
		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			toolResponse(llm.ToolCall{ID: "c1", Name: "web_search", Input: json.RawMessage(`{}`)}),
			textResponse("done"),
		}}
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		// user prompt, tool_use, tool_result, final text
		Expect(result.Messages).To(HaveLen(4))
		Expect(result.Messages[0].Role).To(Equal(llm.RoleUser))
		Expect(result.Messages[1].ToolCalls()).To(HaveLen(1))
	})

	It("stops with budget_exceeded when rounds run out", func() {
		responses := make([]*llm.ChatResponse, 0, 4)
		for i := 0; i < 4; i++ {
			responses = append(responses, toolResponse(
				llm.ToolCall{ID: "c", Name: "web_search", Input: json.RawMessage(`{}`)},
			))
		}
		provider := &scriptedProvider{responses: responses}
		cfg.MaxRounds = 3
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateBudgetExceeded))
		Expect(result.Rounds).To(Equal(3))
	})

	It("enforces the tool-call ceiling before executing the batch", func() {
		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			toolResponse(llm.ToolCall{ID: "c1", Name: "web_search", Input: json.RawMessage(`{}`)}),
			toolResponse(
				llm.ToolCall{ID: "c2", Name: "web_search", Input: json.RawMessage(`{}`)},
				llm.ToolCall{ID: "c3", Name: "web_search", Input: json.RawMessage(`{}`)},
			),
		}}
		cfg.MaxToolCalls = 2
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateBudgetExceeded))
		Expect(result.ErrorMessage).To(Equal("max_tool_calls_exceeded"))
		// The over-budget batch never ran.
		Expect(result.ToolCallsUsed).To(Equal(1))
	})

	It("treats a failed completion signal as a task-ending error", func() {
		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			toolResponse(llm.ToolCall{
				ID: "c1", Name: "complete_task",
				Input: json.RawMessage(`{"insights":"x","findings":[],"sources":[],"confidence":2.0}`),
			}),
		}}
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateError))
		Expect(result.ErrorMessage).To(ContainSubstring("confidence must be between"))
	})

	It("stops with timeout when the conversation wall clock expires", func() {
		provider := &scriptedProvider{
			delay: 50 * time.Millisecond,
			responses: []*llm.ChatResponse{
				toolResponse(llm.ToolCall{ID: "c1", Name: "web_search", Input: json.RawMessage(`{}`)}),
				toolResponse(llm.ToolCall{ID: "c2", Name: "web_search", Input: json.RawMessage(`{}`)}),
				toolResponse(llm.ToolCall{ID: "c3", Name: "web_search", Input: json.RawMessage(`{}`)}),
			},
		}
		cfg.ConversationTimeout = 75 * time.Millisecond
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateTimeout))
	})

	It("distinguishes a per-call timeout from parent cancellation", func() {
		provider := &scriptedProvider{
			delay: 200 * time.Millisecond,
			responses: []*llm.ChatResponse{
				textResponse("never delivered"),
			},
		}
		cfg.CallTimeout = 20 * time.Millisecond
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateTimeout))
	})

	It("reports parent context cancellation as an error", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			textResponse("unused"),
		}}
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(ctx, "research something")
		Expect(result.State).To(Equal(agent.StateError))
		Expect(result.ErrorMessage).To(ContainSubstring("context canceled"))
	})

	It("surfaces provider failures as errors", func() {
		provider := &scriptedProvider{} // no scripted responses
		loop, _ := newLoop(provider, cfg)

		result := loop.Run(context.Background(), "research something")
		Expect(result.State).To(Equal(agent.StateError))
		Expect(result.ErrorMessage).To(ContainSubstring("no more scripted responses"))
	})

	It("emits lifecycle events", func() {
		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			toolResponse(llm.ToolCall{ID: "c1", Name: "web_search", Input: json.RawMessage(`{}`)}),
			textResponse("done"),
		}}
		loop, _ := newLoop(provider, cfg)

		var mu sync.Mutex
		var seen []string
		loop.SetEventLogger(eventLoggerFunc(func(eventType string, data map[string]any) {
			mu.Lock()
			seen = append(seen, eventType)
			mu.Unlock()
		}))

		loop.Run(context.Background(), "research something")

		Expect(seen).To(ContainElements(
			agent.EventLoopStarted,
			agent.EventToolCalls,
			agent.EventToolResults,
			agent.EventLoopTerminated,
		))
	})

	It("writes one JSONL snapshot per logged turn", func() {
		provider := &scriptedProvider{responses: []*llm.ChatResponse{
			toolResponse(llm.ToolCall{ID: "c1", Name: "web_search", Input: json.RawMessage(`{}`)}),
			textResponse("done"),
		}}
		loop, _ := newLoop(provider, cfg)

		path := filepath.Join(GinkgoT().TempDir(), "turns.jsonl")
		tl, err := llm.NewTurnLogger(path)
		Expect(err).ToNot(HaveOccurred())
		loop.SetTurnLogger(tl)

		loop.Run(context.Background(), "research something")
		tl.Close()

		data, err := os.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		Expect(len(lines)).To(BeNumerically(">=", 1))

		var snap map[string]any
		Expect(json.Unmarshal([]byte(lines[0]), &snap)).To(Succeed())
		Expect(snap).To(HaveKey("turn"))
		Expect(snap).To(HaveKey("messages"))
	})
})

type eventLoggerFunc func(eventType string, data map[string]any)

func (f eventLoggerFunc) LogEvent(eventType string, data map[string]any) { f(eventType, data) }
