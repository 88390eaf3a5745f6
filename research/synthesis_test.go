package research_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"surveyor/agent"
	"surveyor/aitools"
	"surveyor/llm"
	"surveyor/research"
	"surveyor/streamers"
)

// streamProvider scripts the streaming path. Each ChatStream call consumes
// the next script entry: either an error or a sequence of content chunks.
type streamProvider struct {
	mu     sync.Mutex
	script []streamTurn
	calls  int
}

type streamTurn struct {
	chunks []string
	err    error
}

func (p *streamProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("unexpected non-streaming call")
}

func (p *streamProvider) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.calls >= len(p.script) {
		return nil, errors.New("no more scripted streams")
	}
	turn := p.script[p.calls]
	p.calls++

	if turn.err != nil {
		return nil, turn.err
	}

	ch := make(chan llm.StreamChunk, len(turn.chunks)+1)
	for _, c := range turn.chunks {
		ch <- llm.StreamChunk{Content: c}
	}
	ch <- llm.StreamChunk{Done: true, Usage: &llm.Usage{OutputTokens: 42}}
	close(ch)
	return ch, nil
}

// chunkRecorder captures synthesis progress events.
type chunkRecorder struct {
	streamers.NullHandler
	mu          sync.Mutex
	sourceCount int
	chunks      []string
}

func (r *chunkRecorder) SynthesisStarted(sourceCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourceCount = sourceCount
}

func (r *chunkRecorder) EssayChunk(chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *chunkRecorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.chunks, "")
}

func completedResult(taskID string, sources ...string) research.SubTaskResult {
	return research.SubTaskResult{
		TaskID: taskID,
		Status: agent.StateCompleted,
		Findings: &aitools.Findings{
			Insights:   "insights for " + taskID,
			Findings:   []string{"a fact"},
			Sources:    sources,
			Confidence: 0.8,
		},
	}
}

var _ = Describe("Synthesizer", func() {
	var handler *chunkRecorder

	newSynthesizer := func(script ...streamTurn) *research.Synthesizer {
		s := research.NewSynthesizer(&streamProvider{script: script}, "synth-model", 2000, nil)
		s.SetRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})
		return s
	}

	BeforeEach(func() {
		handler = &chunkRecorder{}
	})

	It("extracts the essay from its delimiters and streams every chunk", func() {
		synth := newSynthesizer(streamTurn{chunks: []string{"<essay>Solar adoption ", "is accelerating.</essay>"}})
		results := []research.SubTaskResult{
			completedResult("task_001", "https://example.com/a"),
			completedResult("task_002", "https://example.com/b"),
		}

		essay, sources, err := synth.Synthesize(context.Background(), "solar growth", results, handler)

		Expect(err).ToNot(HaveOccurred())
		Expect(essay).To(Equal("Solar adoption is accelerating."))
		Expect(sources).To(Equal([]string{"https://example.com/a", "https://example.com/b"}))
		Expect(handler.sourceCount).To(Equal(2))
		Expect(handler.text()).To(Equal("<essay>Solar adoption is accelerating.</essay>"))
	})

	It("falls back to the raw text when the model skips the delimiters", func() {
		synth := newSynthesizer(streamTurn{chunks: []string{"An undelimited but usable essay."}})
		results := []research.SubTaskResult{completedResult("task_001", "https://example.com/a")}

		essay, _, err := synth.Synthesize(context.Background(), "q", results, handler)

		Expect(err).ToNot(HaveOccurred())
		Expect(essay).To(Equal("An undelimited but usable essay."))
	})

	It("deduplicates sources in first-seen order", func() {
		synth := newSynthesizer(streamTurn{chunks: []string{"<essay>ok</essay>"}})
		results := []research.SubTaskResult{
			completedResult("task_001", "https://example.com/a", "https://example.com/b"),
			completedResult("task_002", "https://example.com/b", "https://example.com/c", "https://example.com/a"),
		}

		_, sources, err := synth.Synthesize(context.Background(), "q", results, handler)

		Expect(err).ToNot(HaveOccurred())
		Expect(sources).To(Equal([]string{
			"https://example.com/a",
			"https://example.com/b",
			"https://example.com/c",
		}))
		Expect(handler.sourceCount).To(Equal(3))
	})

	It("refuses to synthesize when no sub-task produced any source", func() {
		provider := &streamProvider{}
		synth := research.NewSynthesizer(provider, "synth-model", 2000, nil)
		results := []research.SubTaskResult{
			{TaskID: "task_001", Status: agent.StateTimeout},
			completedResult("task_002"),
		}

		_, _, err := synth.Synthesize(context.Background(), "q", results, handler)

		Expect(err).To(MatchError(research.ErrNoSources))
		Expect(provider.calls).To(Equal(0), "model should never be called without sources")
	})

	It("wraps a stream failure in a synthesis error", func() {
		cause := errors.New("stream exploded")
		synth := newSynthesizer(streamTurn{err: cause})
		results := []research.SubTaskResult{completedResult("task_001", "https://example.com/a")}

		_, _, err := synth.Synthesize(context.Background(), "q", results, handler)

		var synthErr *research.SynthesisError
		Expect(errors.As(err, &synthErr)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("synthesis call failed"))
	})

	It("retries a transient stream failure", func() {
		synth := research.NewSynthesizer(&streamProvider{script: []streamTurn{
			{err: errors.New("transient")},
			{chunks: []string{"<essay>second attempt</essay>"}},
		}}, "synth-model", 2000, nil)
		synth.SetRetryPolicy(llm.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond})
		results := []research.SubTaskResult{completedResult("task_001", "https://example.com/a")}

		essay, _, err := synth.Synthesize(context.Background(), "q", results, handler)

		Expect(err).ToNot(HaveOccurred())
		Expect(essay).To(Equal("second attempt"))
	})

	It("rejects an empty essay", func() {
		synth := newSynthesizer(streamTurn{chunks: []string{""}})
		results := []research.SubTaskResult{completedResult("task_001", "https://example.com/a")}

		_, _, err := synth.Synthesize(context.Background(), "q", results, handler)

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("empty essay"))
	})
})

var _ = Describe("FormatSourceList", func() {
	It("numbers each source on its own line", func() {
		out := research.FormatSourceList([]string{"https://a.test", "https://b.test"})
		Expect(out).To(Equal("[Source 1] https://a.test\n[Source 2] https://b.test\n"))
	})

	It("renders nothing for an empty list", func() {
		Expect(research.FormatSourceList(nil)).To(BeEmpty())
	})
})
