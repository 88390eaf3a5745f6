package streamers

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"surveyor/store"
)

// StoringResearchHandler is a ResearchHandler decorator that persists every
// event to the EventStore, then delegates to an inner handler (e.g. CLI or
// WebSocket).
type StoringResearchHandler struct {
	inner  ResearchHandler
	events store.EventStore

	mu    sync.Mutex
	runID string
}

// NewStoringResearchHandler wraps an existing ResearchHandler with event persistence.
func NewStoringResearchHandler(inner ResearchHandler, events store.EventStore) *StoringResearchHandler {
	return &StoringResearchHandler{
		inner:  inner,
		events: events,
	}
}

// storeEvent persists an event, logging (not failing) on error.
func (h *StoringResearchHandler) storeEvent(eventType string, taskID string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		log.Printf("StoringResearchHandler: marshal event data: %v", err)
		return
	}

	h.mu.Lock()
	runID := h.runID
	h.mu.Unlock()

	event := store.RunEvent{
		RunID:     runID,
		TaskID:    taskID,
		EventType: eventType,
		DataJSON:  string(dataJSON),
		CreatedAt: time.Now(),
	}

	if err := h.events.AppendEvent(event); err != nil {
		log.Printf("StoringResearchHandler: store event: %v", err)
	}
}

func (h *StoringResearchHandler) RunStarted(runID string, query string) {
	h.mu.Lock()
	h.runID = runID
	h.mu.Unlock()

	h.storeEvent("run_started", "", map[string]interface{}{
		"run_id": runID,
		"query":  query,
	})
	h.inner.RunStarted(runID, query)
}

func (h *StoringResearchHandler) RunCompleted(runID string, essay string, sources []string) {
	h.storeEvent("run_completed", "", map[string]interface{}{
		"run_id":       runID,
		"essay_length": len(essay),
		"source_count": len(sources),
	})
	h.inner.RunCompleted(runID, essay, sources)
}

func (h *StoringResearchHandler) RunFailed(runID string, err error) {
	h.storeEvent("run_failed", "", map[string]interface{}{
		"run_id": runID,
		"error":  err.Error(),
	})
	h.inner.RunFailed(runID, err)
}

func (h *StoringResearchHandler) PlanReady(strategy string, queryType string, complexity int, subtaskCount int) {
	h.storeEvent("plan_ready", "", map[string]interface{}{
		"strategy":      strategy,
		"query_type":    queryType,
		"complexity":    complexity,
		"subtask_count": subtaskCount,
	})
	h.inner.PlanReady(strategy, queryType, complexity, subtaskCount)
}

func (h *StoringResearchHandler) SubtaskStarted(taskID string, objective string) {
	h.storeEvent("subtask_started", taskID, map[string]interface{}{
		"task_id":   taskID,
		"objective": objective,
	})
	h.inner.SubtaskStarted(taskID, objective)
}

func (h *StoringResearchHandler) SubtaskToolCall(taskID string, toolName string, input string) {
	h.storeEvent("subtask_tool_call", taskID, map[string]interface{}{
		"task_id":   taskID,
		"tool_name": toolName,
		"input":     truncateEventData(input, 500),
	})
	h.inner.SubtaskToolCall(taskID, toolName, input)
}

func (h *StoringResearchHandler) SubtaskCompleted(taskID string, status string, toolCallsUsed int) {
	h.storeEvent("subtask_completed", taskID, map[string]interface{}{
		"task_id":         taskID,
		"status":          status,
		"tool_calls_used": toolCallsUsed,
	})
	h.inner.SubtaskCompleted(taskID, status, toolCallsUsed)
}

func (h *StoringResearchHandler) SubtaskFailed(taskID string, err error) {
	h.storeEvent("subtask_failed", taskID, map[string]interface{}{
		"task_id": taskID,
		"error":   err.Error(),
	})
	h.inner.SubtaskFailed(taskID, err)
}

func (h *StoringResearchHandler) SynthesisStarted(sourceCount int) {
	h.storeEvent("synthesis_started", "", map[string]interface{}{
		"source_count": sourceCount,
	})
	h.inner.SynthesisStarted(sourceCount)
}

func (h *StoringResearchHandler) EssayChunk(chunk string) {
	// Essay chunks are high-volume; we don't store individual chunks.
	// The full essay is captured on the run record.
	h.inner.EssayChunk(chunk)
}

// truncateEventData bounds stored tool inputs
func truncateEventData(s string, max int) string {
	if len(s) <= max {
		return s
	}
	truncated := strings.ToValidUTF8(s[:max], "")
	return truncated + "..."
}
