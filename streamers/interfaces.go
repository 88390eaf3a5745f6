package streamers

// ResearchHandler defines the interface for handling research run events.
// Different implementations can handle stdout, websocket push, storage, etc.
type ResearchHandler interface {
	// Run lifecycle
	RunStarted(runID string, query string)
	RunCompleted(runID string, essay string, sources []string)
	RunFailed(runID string, err error)

	// Planning
	PlanReady(strategy string, queryType string, complexity int, subtaskCount int)

	// Subagent lifecycle
	SubtaskStarted(taskID string, objective string)
	SubtaskToolCall(taskID string, toolName string, input string)
	SubtaskCompleted(taskID string, status string, toolCallsUsed int)
	SubtaskFailed(taskID string, err error)

	// Synthesis
	SynthesisStarted(sourceCount int)

	// EssayChunk is called for each chunk of the final essay as it streams
	EssayChunk(chunk string)
}

// NullHandler discards all events. Used when a caller has no interest in
// progress.
type NullHandler struct{}

func (NullHandler) RunStarted(string, string)              {}
func (NullHandler) RunCompleted(string, string, []string)  {}
func (NullHandler) RunFailed(string, error)                {}
func (NullHandler) PlanReady(string, string, int, int)     {}
func (NullHandler) SubtaskStarted(string, string)          {}
func (NullHandler) SubtaskToolCall(string, string, string) {}
func (NullHandler) SubtaskCompleted(string, string, int)   {}
func (NullHandler) SubtaskFailed(string, error)            {}
func (NullHandler) SynthesisStarted(int)                   {}
func (NullHandler) EssayChunk(string)                      {}
