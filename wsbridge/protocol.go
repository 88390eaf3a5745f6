package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType identifies the kind of message in an Envelope
type MessageType string

const (
	// Requests from a connected client
	TypeRunResearch MessageType = "run_research"
	TypeGetRuns     MessageType = "get_runs"
	TypeGetRun      MessageType = "get_run"
	TypeGetEvents   MessageType = "get_events"
	TypeHeartbeat   MessageType = "heartbeat"

	// Responses
	TypeRunResearchAck  MessageType = "run_research_ack"
	TypeGetRunsResult   MessageType = "get_runs_result"
	TypeGetRunResult    MessageType = "get_run_result"
	TypeGetEventsResult MessageType = "get_events_result"
	TypeHeartbeatAck    MessageType = "heartbeat_ack"
	TypeError           MessageType = "error"

	// One-way events pushed to clients
	TypeRunEvent    MessageType = "run_event"
	TypeRunComplete MessageType = "run_complete"
)

// Envelope is the wire format for all messages
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewRequest creates an envelope with a fresh request ID
func NewRequest(msgType MessageType, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Envelope{
		Type:      msgType,
		RequestID: uuid.New().String(),
		Payload:   data,
	}, nil
}

// NewResponse creates an envelope answering a request
func NewResponse(requestID string, msgType MessageType, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Envelope{
		Type:      msgType,
		RequestID: requestID,
		Payload:   data,
	}, nil
}

// NewEvent creates a one-way envelope with no request ID
func NewEvent(msgType MessageType, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Envelope{
		Type:    msgType,
		Payload: data,
	}, nil
}

// NewError creates an error response envelope
func NewError(requestID string, code string, message string) (*Envelope, error) {
	return NewResponse(requestID, TypeError, &ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// DecodePayload unmarshals an envelope's payload into the given target
func DecodePayload(env *Envelope, target interface{}) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, target)
}

// =============================================================================
// Payloads
// =============================================================================

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type HeartbeatAckPayload struct{}

type RunResearchPayload struct {
	Query string `json:"query"`
}

type RunResearchAckPayload struct {
	Accepted bool   `json:"accepted"`
	RunID    string `json:"run_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type GetRunsPayload struct {
	Limit int `json:"limit,omitempty"`
}

// RunInfo is the JSON-safe projection of a stored run
type RunInfo struct {
	ID         string `json:"id"`
	Query      string `json:"query"`
	QueryType  string `json:"query_type,omitempty"`
	Complexity int    `json:"complexity,omitempty"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type GetRunsResultPayload struct {
	Runs []RunInfo `json:"runs"`
}

type GetRunPayload struct {
	RunID string `json:"run_id"`
}

// SubtaskInfo is the JSON-safe projection of a stored subtask result
type SubtaskInfo struct {
	TaskID        string  `json:"task_id"`
	Status        string  `json:"status"`
	ToolCallsUsed int     `json:"tool_calls_used"`
	Insights      string  `json:"insights,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	ExecutionMs   int64   `json:"execution_ms"`
}

type GetRunResultPayload struct {
	Run      RunInfo       `json:"run"`
	Essay    string        `json:"essay,omitempty"`
	Subtasks []SubtaskInfo `json:"subtasks"`
	Sources  []string      `json:"sources,omitempty"`
}

type GetEventsPayload struct {
	RunID string `json:"run_id"`
}

type RunEventInfo struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	TaskID    string `json:"task_id,omitempty"`
	EventType string `json:"event_type"`
	DataJSON  string `json:"data_json,omitempty"`
	CreatedAt string `json:"created_at"`
}

type GetEventsResultPayload struct {
	Events []RunEventInfo `json:"events"`
}

// RunEventPayload is pushed to clients as a run progresses
type RunEventPayload struct {
	RunID     string      `json:"run_id"`
	TaskID    string      `json:"task_id,omitempty"`
	EventType string      `json:"event_type"`
	Data      interface{} `json:"data,omitempty"`
}

type RunCompletePayload struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
