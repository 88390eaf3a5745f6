package research

import (
	"fmt"
	"strings"
)

const subagentSystemPrompt = `You are a research subagent executing one bounded research task. You have tools for web search and page fetching. Work methodically: search, read the most promising results, and stop as soon as the objective is satisfied. When you are done you MUST call the complete_task tool with your insights, findings, sources, and confidence.`

// buildSubagentPrompt embeds the sub-task contract: objective, success
// criteria, suggested starting points, and the budget hint. The hint is
// advisory; the hard ceiling is enforced by the loop.
func buildSubagentPrompt(taskID, objective, expectedOutput string, searchFocus []string, budgetHint string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Research task %s.\n\n", taskID)
	fmt.Fprintf(&b, "Objective: %s\n\n", objective)
	fmt.Fprintf(&b, "Expected output: %s\n\n", expectedOutput)

	if len(searchFocus) > 0 {
		b.WriteString("Suggested starting searches:\n")
		for _, q := range searchFocus {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Budget: aim for %s total. Reserve one call for complete_task.\n", budgetHint)
	b.WriteString("Call complete_task exactly once when the objective is met or you have exhausted productive leads.")

	return b.String()
}

const synthesisSystemPrompt = `You are a research writer. You merge findings from multiple research subagents into one coherent, well-cited essay. You only state facts supported by the provided findings and you cite sources as [Source N].`

// buildSynthesisPrompt embeds the original query, every sub-task's
// findings, and the deduplicated source list.
func buildSynthesisPrompt(query string, results []SubTaskResult, sources []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Original research query: %s\n\n", query)

	b.WriteString("Research findings by sub-task:\n\n")
	for _, res := range results {
		fmt.Fprintf(&b, "--- %s (status: %s) ---\n", res.TaskID, res.Status)
		if res.Findings != nil {
			fmt.Fprintf(&b, "Insights: %s\n", res.Findings.Insights)
			for _, f := range res.Findings.Findings {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			fmt.Fprintf(&b, "Confidence: %.2f\n", res.Findings.Confidence)
		} else if res.FinalResponse != "" {
			fmt.Fprintf(&b, "%s\n", res.FinalResponse)
		} else {
			b.WriteString("(no findings)\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Sources:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[Source %d] %s\n", i+1, src)
	}
	b.WriteString("\n")

	b.WriteString(`Write an essay-style report answering the original query. Cite every factual claim with [Source N] markers referring to the source list above. Acknowledge gaps where sub-tasks failed or produced low-confidence findings.

Format your response exactly as:
<essay>
...the report...
</essay>
<sources>
[Source 1] url
[Source 2] url
...
</sources>`)

	return b.String()
}

// extractXML returns the content between <tag> and </tag>, or "" when the
// tag is absent.
func extractXML(text, tag string) string {
	open := "<" + tag + ">"
	close := "</" + tag + ">"

	start := strings.Index(text, open)
	if start < 0 {
		return ""
	}
	start += len(open)

	end := strings.Index(text[start:], close)
	if end < 0 {
		return ""
	}

	return strings.TrimSpace(text[start : start+end])
}
