package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"surveyor/llm"
)

// Limits are the structural bounds applied to every produced plan.
type Limits struct {
	MaxSubagents        int // plans are truncated to this many sub-tasks
	MaxSearchesPerAgent int // per-sub-task search budget ceiling
}

// Planner decomposes a research query into a validated TaskPlan with
// exactly one tool-less LLM call.
type Planner struct {
	provider  llm.Provider
	model     string
	maxTokens int
	limits    Limits
	logger    hclog.Logger
}

func NewPlanner(provider llm.Provider, model string, maxTokens int, limits Limits, logger hclog.Logger) *Planner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Planner{
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
		limits:    limits,
		logger:    logger,
	}
}

// rawPlan mirrors the JSON shape the model is instructed to emit.
type rawPlan struct {
	QueryType  string        `json:"query_type"`
	Complexity *int          `json:"complexity"`
	Strategy   *string       `json:"strategy"`
	Subtasks   *[]rawSubtask `json:"subtasks"`
}

type rawSubtask struct {
	ID             string   `json:"id"`
	Objective      *string  `json:"objective"`
	SearchQueries  []string `json:"search_queries"`
	ExpectedOutput *string  `json:"expected_output"`
	MaxSearches    int      `json:"max_searches"`
	Priority       string   `json:"priority"`
}

// Analyze classifies the query and decomposes it into 1..MaxSubagents
// sub-tasks. Structural violations yield a DecompositionError, never a
// partial plan.
func (p *Planner) Analyze(ctx context.Context, query string, now time.Time) (*TaskPlan, error) {
	session := llm.NewSession(p.provider, p.model, plannerSystemPrompt)
	session.SetMaxTokens(p.maxTokens)

	prompt := buildPlannerPrompt(query, p.limits.MaxSubagents, now)

	resp, err := session.Send(ctx, prompt)
	if err != nil {
		return nil, &DecompositionError{Msg: "planner call failed", Cause: err}
	}

	taskPlan, err := p.parsePlan(resp.Text)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("plan produced",
		"query_type", string(taskPlan.QueryType),
		"complexity", taskPlan.Complexity,
		"subtasks", len(taskPlan.Subtasks))

	return taskPlan, nil
}

// fencedJSONRe extracts the JSON object from a markdown code fence,
// with or without a language tag.
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// extractJSON tolerates the model wrapping its JSON in a fenced block or
// surrounding prose: direct parse first, then the fenced block, then the
// first top-level {...} span.
func extractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no JSON object found in response")
}

func (p *Planner) parsePlan(text string) (*TaskPlan, error) {
	payload, err := extractJSON(text)
	if err != nil {
		return nil, &DecompositionError{Msg: "planner response is not valid JSON", Cause: err}
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, &DecompositionError{Msg: "planner response is not valid JSON", Cause: err}
	}

	// Missing required keys are hard errors, never best-effort.
	if raw.Strategy == nil {
		return nil, decompositionErr("planner response missing required key 'strategy'")
	}
	if raw.Complexity == nil {
		return nil, decompositionErr("planner response missing required key 'complexity'")
	}
	if raw.Subtasks == nil {
		return nil, decompositionErr("planner response missing required key 'subtasks'")
	}
	if *raw.Complexity < 1 || *raw.Complexity > 3 {
		return nil, decompositionErr("complexity %d is outside the valid range 1..3", *raw.Complexity)
	}

	subtasks := *raw.Subtasks
	// Excess sub-tasks beyond the cap are dropped silently, a deliberate
	// leniency distinct from the missing-field hard errors above.
	if len(subtasks) > p.limits.MaxSubagents {
		p.logger.Warn("truncating plan to sub-task cap",
			"requested", len(subtasks), "cap", p.limits.MaxSubagents)
		subtasks = subtasks[:p.limits.MaxSubagents]
	}
	if len(subtasks) == 0 {
		return nil, decompositionErr("planner response contains no subtasks")
	}

	out := make([]SubTask, 0, len(subtasks))
	for i, st := range subtasks {
		if st.Objective == nil || strings.TrimSpace(*st.Objective) == "" {
			return nil, decompositionErr("subtask %d missing required field 'objective'", i)
		}
		if st.ExpectedOutput == nil || strings.TrimSpace(*st.ExpectedOutput) == "" {
			return nil, decompositionErr("subtask %d missing required field 'expected_output'", i)
		}

		id := st.ID
		if id == "" {
			id = fmt.Sprintf("task_%03d", i+1)
		}

		maxSearches := st.MaxSearches
		if maxSearches <= 0 {
			maxSearches = p.limits.MaxSearchesPerAgent
		}
		// Over-budget requests are clamped, never rejected.
		if maxSearches > p.limits.MaxSearchesPerAgent {
			maxSearches = p.limits.MaxSearchesPerAgent
		}

		priority := Priority(st.Priority)
		switch priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			priority = PriorityMedium
		}

		out = append(out, SubTask{
			ID:             id,
			Objective:      *st.Objective,
			SearchFocus:    st.SearchQueries,
			ExpectedOutput: *st.ExpectedOutput,
			Priority:       priority,
			MaxSearchCalls: maxSearches,
		})
	}

	queryType := QueryType(raw.QueryType)
	switch queryType {
	case QueryStraightforward, QueryBreadthFirst, QueryDepthFirst:
	default:
		queryType = QueryStraightforward
	}

	return &TaskPlan{
		Strategy:   *raw.Strategy,
		QueryType:  queryType,
		Subtasks:   out,
		Complexity: *raw.Complexity,
	}, nil
}
