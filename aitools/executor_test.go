package aitools_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"surveyor/aitools"
	"surveyor/llm"
)

// stubTool is a scriptable tool for executor tests. Calls in one batch run
// concurrently, so input tracking is locked.
type stubTool struct {
	name string
	fn   func(ctx context.Context, params string) (string, error)

	mu     sync.Mutex
	inputs []string
}

func (t *stubTool) ToolName() string        { return t.name }
func (t *stubTool) ToolDescription() string { return "stub" }
func (t *stubTool) ToolPayloadSchema() aitools.Schema {
	return aitools.Schema{Type: aitools.TypeObject, Properties: aitools.PropertyMap{}}
}
func (t *stubTool) Call(ctx context.Context, params string) (string, error) {
	t.mu.Lock()
	t.inputs = append(t.inputs, params)
	t.mu.Unlock()
	return t.fn(ctx, params)
}

func (t *stubTool) seenInputs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.inputs...)
}

func call(id, name, input string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}
}

var _ = Describe("Executor", func() {
	It("returns one result per call in input order", func() {
		echo := &stubTool{name: "echo", fn: func(_ context.Context, params string) (string, error) {
			return params, nil
		}}
		registry := aitools.NewRegistry(echo)
		executor := aitools.NewExecutor(registry, 0)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "echo", `{"n":1}`),
			call("c2", "echo", `{"n":2}`),
			call("c3", "echo", `{"n":3}`),
		})

		Expect(results).To(HaveLen(3))
		Expect(results[0].ToolUseID).To(Equal("c1"))
		Expect(results[1].Content).To(Equal(`{"n":2}`))
		Expect(results[2].ToolUseID).To(Equal("c3"))
	})

	It("reports unknown tools as error results", func() {
		executor := aitools.NewExecutor(aitools.NewRegistry(), 0)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "nonexistent", `{}`),
		})

		Expect(results[0].IsError()).To(BeTrue())
		Expect(results[0].Error).To(ContainSubstring("Unknown tool: nonexistent"))
	})

	It("isolates a failing call from its batch siblings", func() {
		ok := &stubTool{name: "ok", fn: func(_ context.Context, _ string) (string, error) {
			return "fine", nil
		}}
		bad := &stubTool{name: "bad", fn: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("upstream unavailable")
		}}
		executor := aitools.NewExecutor(aitools.NewRegistry(ok, bad), 0)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "bad", `{}`),
			call("c2", "ok", `{}`),
		})

		Expect(results[0].IsError()).To(BeTrue())
		Expect(results[0].Error).To(Equal("upstream unavailable"))
		Expect(results[1].IsError()).To(BeFalse())
		Expect(results[1].Content).To(Equal("fine"))
	})

	It("converts a panicking tool into an error result", func() {
		boom := &stubTool{name: "boom", fn: func(_ context.Context, _ string) (string, error) {
			panic("index out of range")
		}}
		executor := aitools.NewExecutor(aitools.NewRegistry(boom), 0)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "boom", `{}`),
		})

		Expect(results[0].IsError()).To(BeTrue())
		Expect(results[0].Error).To(ContainSubstring("Tool 'boom' panicked"))
	})

	It("accepts input passed as a JSON-encoded string", func() {
		echo := &stubTool{name: "echo", fn: func(_ context.Context, params string) (string, error) {
			return params, nil
		}}
		executor := aitools.NewExecutor(aitools.NewRegistry(echo), 0)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "echo", `"{\"query\":\"solar\"}"`),
		})

		Expect(results[0].IsError()).To(BeFalse())
		Expect(results[0].Content).To(Equal(`{"query":"solar"}`))
	})

	It("treats empty input as an empty object", func() {
		echo := &stubTool{name: "echo", fn: func(_ context.Context, params string) (string, error) {
			return params, nil
		}}
		executor := aitools.NewExecutor(aitools.NewRegistry(echo), 0)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "echo", ``),
		})

		Expect(results[0].Content).To(Equal(`{}`))
	})

	It("rejects malformed input without invoking the tool", func() {
		echo := &stubTool{name: "echo", fn: func(_ context.Context, params string) (string, error) {
			return params, nil
		}}
		executor := aitools.NewExecutor(aitools.NewRegistry(echo), 0)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "echo", `{not json`),
		})

		Expect(results[0].IsError()).To(BeTrue())
		Expect(results[0].Error).To(ContainSubstring("Invalid arguments"))
		Expect(echo.seenInputs()).To(BeEmpty())
	})

	It("truncates oversized results with a visible marker", func() {
		big := &stubTool{name: "big", fn: func(_ context.Context, _ string) (string, error) {
			return strings.Repeat("x", 500), nil
		}}
		executor := aitools.NewExecutor(aitools.NewRegistry(big), 100)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "big", `{}`),
		})

		Expect(results[0].Content).To(HaveSuffix("... [truncated]"))
		Expect(len(results[0].Content)).To(Equal(100 + len("... [truncated]")))
	})

	It("never splits a multi-byte character when truncating", func() {
		big := &stubTool{name: "big", fn: func(_ context.Context, _ string) (string, error) {
			return strings.Repeat("é", 100), nil // 2 bytes each
		}}
		executor := aitools.NewExecutor(aitools.NewRegistry(big), 101)

		results := executor.Execute(context.Background(), []llm.ToolCall{
			call("c1", "big", `{}`),
		})

		kept := strings.TrimSuffix(results[0].Content, "... [truncated]")
		Expect(strings.ToValidUTF8(kept, "?")).To(Equal(kept))
		Expect(len(kept)).To(Equal(100))
	})
})

var _ = Describe("Registry", func() {
	It("preserves registration order in definitions", func() {
		a := &stubTool{name: "alpha", fn: func(_ context.Context, _ string) (string, error) { return "", nil }}
		b := &stubTool{name: "beta", fn: func(_ context.Context, _ string) (string, error) { return "", nil }}
		registry := aitools.NewRegistry(b, a)

		defs := registry.Definitions()
		Expect(defs).To(HaveLen(2))
		Expect(defs[0].Name).To(Equal("beta"))
		Expect(defs[1].Name).To(Equal("alpha"))
	})

	It("replaces tools registered under the same name", func() {
		first := &stubTool{name: "dup", fn: func(_ context.Context, _ string) (string, error) { return "first", nil }}
		second := &stubTool{name: "dup", fn: func(_ context.Context, _ string) (string, error) { return "second", nil }}
		registry := aitools.NewRegistry(first, second)

		Expect(registry.Names()).To(Equal([]string{"dup"}))
		content, err := registry.Get("dup").Call(context.Background(), "{}")
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal("second"))
	})

	It("returns nil for unknown tools", func() {
		Expect(aitools.NewRegistry().Get("missing")).To(BeNil())
	})

	It("sorts names alphabetically regardless of registration order", func() {
		a := &stubTool{name: "web_search", fn: func(_ context.Context, _ string) (string, error) { return "", nil }}
		b := &stubTool{name: "complete_task", fn: func(_ context.Context, _ string) (string, error) { return "", nil }}
		c := &stubTool{name: "wikipedia_search", fn: func(_ context.Context, _ string) (string, error) { return "", nil }}
		registry := aitools.NewRegistry(a, c, b)

		Expect(registry.SortedNames()).To(Equal([]string{"complete_task", "web_search", "wikipedia_search"}))
		Expect(registry.Names()).To(Equal([]string{"web_search", "wikipedia_search", "complete_task"}))
	})
})

var _ = Describe("CompleteTaskTool", func() {
	It("records findings and acknowledges completion", func() {
		complete := aitools.NewCompleteTaskTool()
		Expect(complete.Findings()).To(BeNil())

		ack, err := complete.Call(context.Background(), `{
			"insights": "adoption is accelerating",
			"findings": ["sales doubled in 2024"],
			"sources": ["https://example.com/report"],
			"confidence": 0.8
		}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(ack).To(ContainSubstring("task_completed"))

		f := complete.Findings()
		Expect(f).NotTo(BeNil())
		Expect(f.Insights).To(Equal("adoption is accelerating"))
		Expect(f.Sources).To(Equal([]string{"https://example.com/report"}))
		Expect(f.Confidence).To(BeNumerically("~", 0.8, 0.001))
	})

	It("rejects confidence outside 0..1", func() {
		complete := aitools.NewCompleteTaskTool()
		_, err := complete.Call(context.Background(), `{
			"insights": "x", "findings": [], "sources": [], "confidence": 1.5
		}`)
		Expect(err).To(MatchError(ContainSubstring("confidence must be between")))
		Expect(complete.Findings()).To(BeNil())
	})

	It("invokes the completion callback", func() {
		complete := aitools.NewCompleteTaskTool()
		var got *aitools.Findings
		complete.OnComplete = func(f aitools.Findings) { got = &f }

		_, err := complete.Call(context.Background(), `{
			"insights": "x", "findings": ["a"], "sources": [], "confidence": 0.5
		}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).NotTo(BeNil())
		Expect(got.Findings).To(Equal([]string{"a"}))
	})
})
