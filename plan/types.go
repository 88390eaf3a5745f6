package plan

// Priority of a sub-task
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// QueryType informs how many sub-tasks to expect, not execution mechanics
type QueryType string

const (
	QueryStraightforward QueryType = "straightforward"
	QueryBreadthFirst    QueryType = "breadth_first"
	QueryDepthFirst      QueryType = "depth_first"
)

// SubTask is one bounded, independently researchable unit of a decomposed
// query. Immutable after creation; consumed exactly once by a subagent.
type SubTask struct {
	ID             string
	Objective      string
	SearchFocus    []string // suggested query strings, hints only
	ExpectedOutput string
	Priority       Priority
	MaxSearchCalls int // clamped to the global per-agent ceiling
}

// TaskPlan is the decomposition result. Produced once per query, read-only
// afterward.
type TaskPlan struct {
	Strategy   string
	QueryType  QueryType
	Subtasks   []SubTask
	Complexity int // 1..3, drives resource allocation
}
