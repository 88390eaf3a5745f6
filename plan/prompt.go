package plan

import (
	"fmt"
	"strings"
	"time"
)

const plannerSystemPrompt = `You are a research lead who decomposes research queries into independent sub-tasks for parallel execution by research subagents. You respond with a single JSON object and nothing else.`

const plannerPromptTemplate = `Analyze the following research query and decompose it into sub-tasks.

Query: %s
Current date: %s

First classify the query:
- "straightforward": a single factual question. Use 1 sub-task.
- "breadth_first": a query spanning several independent angles. Use one sub-task per angle.
- "depth_first": a query needing layered investigation of one topic. Use 2-3 sub-tasks building depth.

Then assign an overall complexity score: 1 (simple lookup), 2 (moderate research), or 3 (extensive multi-angle research).

Produce at most %d sub-tasks. Each sub-task must be independently researchable: no sub-task may depend on another's results.

Respond with exactly one JSON object:
{
  "query_type": "straightforward" | "breadth_first" | "depth_first",
  "complexity": 1 | 2 | 3,
  "strategy": "one-paragraph rationale for this decomposition",
  "subtasks": [
    {
      "id": "task_001",
      "objective": "what this sub-task must find out",
      "search_queries": ["suggested search query", "..."],
      "expected_output": "what a successful result looks like",
      "max_searches": 5,
      "priority": "high" | "medium" | "low"
    }
  ]
}`

func buildPlannerPrompt(query string, maxSubagents int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, plannerPromptTemplate, query, now.Format("January 2, 2006"), maxSubagents)
	return b.String()
}
