package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"surveyor/llm"
)

// recordingProvider captures every request and replays scripted responses.
type recordingProvider struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	chunks    []llm.StreamChunk
	err       error
	requests  []*llm.ChatRequest
}

func (p *recordingProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *recordingProvider) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan llm.StreamChunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

var _ = Describe("Session", func() {
	It("sends system prompts ahead of the transcript", func() {
		provider := &recordingProvider{responses: []*llm.ChatResponse{{Text: "hi"}}}
		session := llm.NewSession(provider, "model-a", "first rule", "second rule")

		_, err := session.Send(context.Background(), "hello")
		Expect(err).ToNot(HaveOccurred())

		req := provider.requests[0]
		Expect(req.Model).To(Equal("model-a"))
		Expect(req.Messages).To(HaveLen(3))
		Expect(req.Messages[0].Role).To(Equal(llm.RoleSystem))
		Expect(req.Messages[0].Content).To(Equal("first rule"))
		Expect(req.Messages[1].Role).To(Equal(llm.RoleSystem))
		Expect(req.Messages[2].Role).To(Equal(llm.RoleUser))
		Expect(req.Messages[2].Content).To(Equal("hello"))
	})

	It("accumulates the transcript across round-trips", func() {
		provider := &recordingProvider{responses: []*llm.ChatResponse{
			{Text: "one"},
			{Text: "two"},
		}}
		session := llm.NewSession(provider, "model-a")

		_, err := session.Send(context.Background(), "first")
		Expect(err).ToNot(HaveOccurred())
		_, err = session.Send(context.Background(), "second")
		Expect(err).ToNot(HaveOccurred())

		Expect(session.SnapshotMessages()).To(HaveLen(4))
		second := provider.requests[1]
		Expect(second.Messages).To(HaveLen(4))
		Expect(second.Messages[1].Content).To(Equal("one"))
	})

	It("records tool calls and results as structured messages", func() {
		call := llm.ToolCall{ID: "call_1", Name: "search", Input: json.RawMessage(`{"query":"x"}`)}
		provider := &recordingProvider{responses: []*llm.ChatResponse{
			{Text: "let me look", ToolCalls: []llm.ToolCall{call}, StopReason: llm.StopToolUse},
			{Text: "found it"},
		}}
		session := llm.NewSession(provider, "model-a")

		resp, err := session.Send(context.Background(), "find x")
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.HasToolCalls()).To(BeTrue())

		session.AppendToolResults([]llm.ToolResult{{ToolUseID: "call_1", Content: "result text"}})
		_, err = session.Resume(context.Background())
		Expect(err).ToNot(HaveOccurred())

		msgs := session.SnapshotMessages()
		Expect(msgs).To(HaveLen(4))
		Expect(msgs[1].ToolCalls()).To(HaveLen(1))
		Expect(msgs[1].ToolCalls()[0].Name).To(Equal("search"))
		Expect(msgs[2].Role).To(Equal(llm.RoleUser))
		Expect(msgs[2].Parts[0].ToolResult.Content).To(Equal("result text"))
	})

	It("returns the provider error without recording a response", func() {
		cause := errors.New("rate limited")
		provider := &recordingProvider{err: cause}
		session := llm.NewSession(provider, "model-a")

		_, err := session.Send(context.Background(), "hello")

		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(session.SnapshotMessages()).To(HaveLen(1), "only the user message is kept")
	})

	It("assembles the streamed response and forwards each chunk", func() {
		provider := &recordingProvider{chunks: []llm.StreamChunk{
			{Content: "part one "},
			{Content: "part two"},
			{Done: true, Usage: &llm.Usage{OutputTokens: 7}},
		}}
		session := llm.NewSession(provider, "model-a")

		var seen []string
		resp, err := session.SendStream(context.Background(), "go", func(chunk llm.StreamChunk) {
			seen = append(seen, chunk.Content)
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Text).To(Equal("part one part two"))
		Expect(resp.Usage.OutputTokens).To(Equal(7))
		Expect(seen).To(HaveLen(3))
		Expect(session.SnapshotMessages()).To(HaveLen(2))
	})

	It("clones independently of the original", func() {
		provider := &recordingProvider{responses: []*llm.ChatResponse{{Text: "a"}, {Text: "b"}}}
		session := llm.NewSession(provider, "model-a", "rule")
		_, err := session.Send(context.Background(), "seed")
		Expect(err).ToNot(HaveOccurred())

		clone := session.Clone()
		Expect(clone.ID()).ToNot(Equal(session.ID()))

		_, err = clone.Send(context.Background(), "branch")
		Expect(err).ToNot(HaveOccurred())

		Expect(session.SnapshotMessages()).To(HaveLen(2))
		Expect(clone.SnapshotMessages()).To(HaveLen(4))
	})
})

var _ = Describe("Router", func() {
	It("dispatches by the requested model", func() {
		light := &recordingProvider{responses: []*llm.ChatResponse{{Text: "from light"}}}
		heavy := &recordingProvider{responses: []*llm.ChatResponse{{Text: "from heavy"}}}

		router := llm.NewRouter()
		router.Register("light-model", light)
		router.Register("heavy-model", heavy)

		resp, err := router.Chat(context.Background(), &llm.ChatRequest{Model: "heavy-model"})
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Text).To(Equal("from heavy"))
		Expect(light.requests).To(BeEmpty())
	})

	It("rejects an unregistered model", func() {
		router := llm.NewRouter()
		_, err := router.Chat(context.Background(), &llm.ChatRequest{Model: "unknown"})
		Expect(err).To(MatchError(ContainSubstring("no provider registered for model 'unknown'")))
	})

	It("routes streaming requests the same way", func() {
		provider := &recordingProvider{chunks: []llm.StreamChunk{{Content: "x", Done: true}}}
		router := llm.NewRouter()
		router.Register("stream-model", provider)

		ch, err := router.ChatStream(context.Background(), &llm.ChatRequest{Model: "stream-model"})
		Expect(err).ToNot(HaveOccurred())
		Expect(ch).ToNot(BeNil())
	})
})

var _ = Describe("RetryPolicy", func() {
	It("returns immediately on success", func() {
		calls := 0
		err := llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(), func() error {
			calls++
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("retries up to the attempt budget and returns the last error", func() {
		calls := 0
		last := errors.New("attempt 3 failed")
		err := llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return last
		})
		Expect(err).To(MatchError(last))
		Expect(calls).To(Equal(3))
	})

	It("stops retrying once the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := llm.RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}.Do(ctx, func() error {
			calls++
			cancel()
			return errors.New("fail")
		})
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})

	It("invokes exactly once with a zero policy", func() {
		calls := 0
		err := llm.RetryPolicy{}.Do(context.Background(), func() error {
			calls++
			return errors.New("fail")
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})
