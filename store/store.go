package store

import (
	"time"
)

// Bundle holds all stores for auditing research runs. It is an external
// audit collaborator: the orchestrator appends to it but never reads it
// back within the same execution.
type Bundle struct {
	Runs    RunStore
	Results ResultStore
	Sources SourceStore
	Events  EventStore
	Reports ReportStore
	closer  func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Run is one top-level research run
type Run struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	QueryType  string     `json:"queryType"`
	Complexity int        `json:"complexity"`
	Strategy   string     `json:"strategy"`
	Status     string     `json:"status"`
	Essay      string     `json:"essay,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	DurationMs int64      `json:"durationMs,omitempty"`
}

// RunStore tracks research runs
type RunStore interface {
	CreateRun(run Run) error
	CompleteRun(id, status, essay string, durationMs int64) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
}

// SubtaskRecord is the persisted form of one sub-task result
type SubtaskRecord struct {
	RunID            string  `json:"runId"`
	TaskID           string  `json:"taskId"`
	Status           string  `json:"status"`
	ToolCallsUsed    int     `json:"toolCallsUsed"`
	Insights         string  `json:"insights,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	ErrorMessage     string  `json:"errorMessage,omitempty"`
	ExecutionMs      int64   `json:"executionMs"`
	ConversationJSON string  `json:"conversationJson,omitempty"`
}

// ResultStore tracks per-sub-task results and their transcripts
type ResultStore interface {
	SaveResult(rec SubtaskRecord) error
	GetResultsByRun(runID string) ([]SubtaskRecord, error)
}

// SourceRecord is one audited research source
type SourceRecord struct {
	RunID     string    `json:"runId"`
	TaskID    string    `json:"taskId"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// SourceStore is an append-only log of research sources
type SourceStore interface {
	AppendSources(runID, taskID string, urls []string) error
	GetSourcesByRun(runID string) ([]SourceRecord, error)
}

// RunEvent is one structured execution event
type RunEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	TaskID    string    `json:"taskId,omitempty"`
	EventType string    `json:"eventType"`
	DataJSON  string    `json:"dataJson"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventStore is an append-only log of run events
type EventStore interface {
	AppendEvent(event RunEvent) error
	GetEventsByRun(runID string) ([]RunEvent, error)
}

// Report is one rendered research digest
type Report struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	HTML      string    `json:"html"`
	RunIDs    []string  `json:"runIds,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReportStore tracks rendered reports
type ReportStore interface {
	SaveReport(report Report) error
	GetReport(id string) (*Report, error)
	ListReports(limit int) ([]Report, error)
}
