package research

import (
	"strings"
	"time"

	"surveyor/plan"
)

// Budgets is the immutable resource configuration injected into the
// orchestrator. Tests vary budgets per instance; nothing reads ambient
// global state.
type Budgets struct {
	MaxSubagents        int
	MaxSearchesPerAgent int
	MaxRounds           int
	CallTimeout         time.Duration
	ConversationTimeout time.Duration
	SynthesisTimeout    time.Duration
	SynthesisMaxTokens  int
	MaxToolResultChars  int
}

// DefaultBudgets mirror the production defaults.
var DefaultBudgets = Budgets{
	MaxSubagents:        4,
	MaxSearchesPerAgent: 10,
	MaxRounds:           15,
	CallTimeout:         240 * time.Second,
	ConversationTimeout: 800 * time.Second,
	SynthesisTimeout:    340 * time.Second,
	SynthesisMaxTokens:  16000,
	MaxToolResultChars:  4000,
}

// ModelTiers maps complexity scores to model identifiers so cheap
// sub-tasks run on cheap models.
type ModelTiers struct {
	Light  string // complexity 1
	Medium string // complexity 2
	Heavy  string // complexity 3
}

// ForComplexity returns the model for a 1..3 complexity score.
func (t ModelTiers) ForComplexity(score int) string {
	switch score {
	case 1:
		return t.Light
	case 2:
		return t.Medium
	default:
		return t.Heavy
	}
}

// allocation is the per-sub-task resource envelope derived from its
// complexity estimate.
type allocation struct {
	searches    int
	tokenBudget int
	timeout     time.Duration
	budgetHint  string // textual budget guidance embedded in the prompt
}

func allocationFor(complexity int) allocation {
	switch complexity {
	case 1:
		return allocation{searches: 4, tokenBudget: 8000, timeout: 60 * time.Second, budgetHint: "under 5 tool calls"}
	case 2:
		return allocation{searches: 7, tokenBudget: 8000, timeout: 120 * time.Second, budgetHint: "5-8 tool calls"}
	default:
		return allocation{searches: 12, tokenBudget: 16000, timeout: 120 * time.Second, budgetHint: "8-15 tool calls"}
	}
}

// estimateComplexity is a cheap heuristic over the sub-task's shape: few
// suggested searches and a short objective mean a simple lookup.
func estimateComplexity(task plan.SubTask) int {
	words := len(strings.Fields(task.Objective))
	focus := len(task.SearchFocus)

	if focus <= 2 && words <= 10 {
		return 1
	}
	if focus <= 4 && words <= 20 {
		return 2
	}
	return 3
}
