package research

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"surveyor/llm"
	"surveyor/streamers"
)

// Synthesizer merges all sub-task findings into one cited essay with a
// single tool-less model interaction.
type Synthesizer struct {
	provider  llm.Provider
	model     string
	maxTokens int
	retry     llm.RetryPolicy
	logger    hclog.Logger
}

func NewSynthesizer(provider llm.Provider, model string, maxTokens int, logger hclog.Logger) *Synthesizer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Synthesizer{
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
		retry:     llm.DefaultRetryPolicy,
		logger:    logger,
	}
}

// SetRetryPolicy overrides the transient-failure retry policy.
func (s *Synthesizer) SetRetryPolicy(p llm.RetryPolicy) {
	s.retry = p
}

// Synthesize produces the final essay from all terminal sub-task results.
// Called exactly once per run, after every sub-task has terminated. Zero
// sources across all sub-tasks is a reportable failure.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []SubTaskResult, handler streamers.ResearchHandler) (string, []string, error) {
	if handler == nil {
		handler = streamers.NullHandler{}
	}

	sources := dedupeSources(results)
	if len(sources) == 0 {
		return "", nil, &SynthesisError{Msg: "nothing to synthesize", Cause: ErrNoSources}
	}

	handler.SynthesisStarted(len(sources))
	s.logger.Debug("synthesis starting", "subtasks", len(results), "sources", len(sources))

	prompt := buildSynthesisPrompt(query, results, sources)

	session := llm.NewSession(s.provider, s.model, synthesisSystemPrompt)
	session.SetMaxTokens(s.maxTokens)

	var text string
	err := s.retry.Do(ctx, func() error {
		resp, err := session.SendStream(ctx, prompt, func(chunk llm.StreamChunk) {
			handler.EssayChunk(chunk.Content)
		})
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", nil, &SynthesisError{Msg: "synthesis call failed", Cause: err}
	}

	essay := extractXML(text, "essay")
	if essay == "" {
		// Some models skip the delimiters; fall back to the raw text
		// rather than discarding a usable essay.
		essay = text
	}
	if essay == "" {
		return "", nil, &SynthesisError{Msg: "model returned an empty essay"}
	}

	return essay, sources, nil
}

// dedupeSources merges the source lists of all sub-tasks, preserving
// first-seen order.
func dedupeSources(results []SubTaskResult) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, res := range results {
		for _, src := range res.Sources() {
			if src == "" || seen[src] {
				continue
			}
			seen[src] = true
			sources = append(sources, src)
		}
	}
	return sources
}

// FormatSourceList renders the numbered source list used in reports.
func FormatSourceList(sources []string) string {
	var out string
	for i, src := range sources {
		out += fmt.Sprintf("[Source %d] %s\n", i+1, src)
	}
	return out
}
