package cli

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// ResearchHandler implements streamers.ResearchHandler for terminal output
type ResearchHandler struct {
	mu          sync.Mutex
	spinner     *spinner
	renderer    *glamour.TermRenderer
	essayBuffer strings.Builder
	streaming   bool
}

// NewResearchHandler creates a new CLI research handler
func NewResearchHandler() *ResearchHandler {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return &ResearchHandler{
		spinner:  newSpinner(),
		renderer: renderer,
	}
}

func (s *ResearchHandler) RunStarted(runID string, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Research: %s ===%s\n", ColorBold, ColorCyan, truncate(query, 80), ColorReset)
	fmt.Printf("%sRun ID: %s%s\n\n", ColorGray, runID, ColorReset)
	s.spinner.Start("", "Planning...")
}

func (s *ResearchHandler) PlanReady(strategy string, queryType string, complexity int, subtaskCount int) {
	s.spinner.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s%s--- Plan ---%s\n", ColorBold, ColorCyan, ColorReset)
	fmt.Printf("%sType: %s | Complexity: %d | Subtasks: %d%s\n", ColorGray, queryType, complexity, subtaskCount, ColorReset)
	fmt.Printf("%s%s%s\n\n", ColorGray, truncate(strategy, 300), ColorReset)
}

func (s *ResearchHandler) SubtaskStarted(taskID string, objective string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s[%s] Starting: %s%s\n", ColorLightBrown, taskID, truncate(objective, 80), ColorReset)
}

func (s *ResearchHandler) SubtaskToolCall(taskID string, toolName string, input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  [%s] Calling %s%s%s: %s\n", taskID, ColorBold, toolName, ColorReset, truncate(input, 80))
}

func (s *ResearchHandler) SubtaskCompleted(taskID string, status string, toolCallsUsed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == "completed" {
		fmt.Printf("%s[%s] Completed (%d tool calls)%s\n", ColorGreen, taskID, toolCallsUsed, ColorReset)
	} else {
		fmt.Printf("%s[%s] Finished with status '%s' (%d tool calls)%s\n", ColorOrange, taskID, status, toolCallsUsed, ColorReset)
	}
}

func (s *ResearchHandler) SubtaskFailed(taskID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s[%s] FAILED: %v%s\n", ColorRed, taskID, err, ColorReset)
}

func (s *ResearchHandler) SynthesisStarted(sourceCount int) {
	s.mu.Lock()
	fmt.Printf("\n%s%s--- Synthesizing (%d sources) ---%s\n", ColorBold, ColorCyan, sourceCount, ColorReset)
	s.mu.Unlock()
	s.spinner.Start("", "Writing essay...")
}

func (s *ResearchHandler) EssayChunk(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		s.streaming = true
	}
	// Buffer chunks - spinner keeps running, rendered output shown at the end
	s.essayBuffer.WriteString(chunk)
}

func (s *ResearchHandler) RunCompleted(runID string, essay string, sources []string) {
	s.spinner.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()

	// Render markdown
	rendered := essay
	if s.renderer != nil {
		if out, err := s.renderer.Render(essay); err == nil {
			rendered = out
		}
	}
	rendered = strings.TrimSpace(rendered)

	fmt.Printf("\n%s%s=== Essay ===%s\n\n", ColorBold, ColorGreen, ColorReset)
	fmt.Println(rendered)

	if len(sources) > 0 {
		fmt.Printf("\n%s%s=== Sources ===%s\n", ColorBold, ColorCyan, ColorReset)
		for i, src := range sources {
			fmt.Printf("%s[%d] %s%s\n", ColorGray, i+1, src, ColorReset)
		}
	}

	s.essayBuffer.Reset()
	s.streaming = false
}

func (s *ResearchHandler) RunFailed(runID string, err error) {
	s.spinner.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s[Research run FAILED: %v]%s\n", ColorBold, ColorRed, err, ColorReset)
}

// truncate shortens a string to max length, adding ellipsis if needed
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
