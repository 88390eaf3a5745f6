package wsbridge

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// WSResearchHandler implements streamers.ResearchHandler by broadcasting
// events over WebSocket to connected clients.
type WSResearchHandler struct {
	server *Server

	mu      sync.Mutex
	runID   string
	runIDCh chan string // signals when run ID is available
}

// NewWSResearchHandler creates a new WebSocket-backed research handler.
func NewWSResearchHandler(server *Server) *WSResearchHandler {
	return &WSResearchHandler{
		server:  server,
		runIDCh: make(chan string, 1),
	}
}

// RunID returns the run ID (available after RunStarted is called).
func (h *WSResearchHandler) RunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runID
}

// WaitForRunID blocks until RunStarted fires and the run ID is known, or times out.
func (h *WSResearchHandler) WaitForRunID(timeout time.Duration) (string, error) {
	select {
	case id := <-h.runIDCh:
		return id, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("timeout waiting for run to start")
	}
}

func (h *WSResearchHandler) sendEvent(eventType string, taskID string, data interface{}) {
	h.mu.Lock()
	rid := h.runID
	h.mu.Unlock()

	env, err := NewEvent(TypeRunEvent, &RunEventPayload{
		RunID:     rid,
		TaskID:    taskID,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		log.Printf("WSResearchHandler: marshal event: %v", err)
		return
	}
	h.server.Broadcast(env)
}

func (h *WSResearchHandler) RunStarted(runID string, query string) {
	h.mu.Lock()
	h.runID = runID
	h.mu.Unlock()

	// Notify anyone waiting for the run ID
	select {
	case h.runIDCh <- runID:
	default:
	}

	h.sendEvent("run_started", "", map[string]interface{}{
		"run_id": runID,
		"query":  query,
	})
}

func (h *WSResearchHandler) RunCompleted(runID string, essay string, sources []string) {
	h.sendEvent("run_completed", "", map[string]interface{}{
		"run_id":  runID,
		"essay":   essay,
		"sources": sources,
	})
}

func (h *WSResearchHandler) RunFailed(runID string, err error) {
	h.sendEvent("run_failed", "", map[string]interface{}{
		"run_id": runID,
		"error":  err.Error(),
	})
}

func (h *WSResearchHandler) PlanReady(strategy string, queryType string, complexity int, subtaskCount int) {
	h.sendEvent("plan_ready", "", map[string]interface{}{
		"strategy":      strategy,
		"query_type":    queryType,
		"complexity":    complexity,
		"subtask_count": subtaskCount,
	})
}

func (h *WSResearchHandler) SubtaskStarted(taskID string, objective string) {
	h.sendEvent("subtask_started", taskID, map[string]interface{}{
		"task_id":   taskID,
		"objective": objective,
	})
}

func (h *WSResearchHandler) SubtaskToolCall(taskID string, toolName string, input string) {
	h.sendEvent("subtask_tool_call", taskID, map[string]interface{}{
		"task_id":   taskID,
		"tool_name": toolName,
		"input":     input,
	})
}

func (h *WSResearchHandler) SubtaskCompleted(taskID string, status string, toolCallsUsed int) {
	h.sendEvent("subtask_completed", taskID, map[string]interface{}{
		"task_id":         taskID,
		"status":          status,
		"tool_calls_used": toolCallsUsed,
	})
}

func (h *WSResearchHandler) SubtaskFailed(taskID string, err error) {
	h.sendEvent("subtask_failed", taskID, map[string]interface{}{
		"task_id": taskID,
		"error":   err.Error(),
	})
}

func (h *WSResearchHandler) SynthesisStarted(sourceCount int) {
	h.sendEvent("synthesis_started", "", map[string]interface{}{
		"source_count": sourceCount,
	})
}

func (h *WSResearchHandler) EssayChunk(chunk string) {
	// High-volume streaming chunks are not broadcast individually.
	// The full essay arrives with run_completed.
}
