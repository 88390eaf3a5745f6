package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    query_type TEXT,
    complexity INTEGER,
    strategy TEXT,
    status TEXT DEFAULT 'running',
    essay TEXT,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME,
    duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS subtask_results (
    run_id TEXT NOT NULL REFERENCES runs(id),
    task_id TEXT NOT NULL,
    status TEXT NOT NULL,
    tool_calls_used INTEGER DEFAULT 0,
    insights TEXT,
    confidence REAL,
    error_message TEXT,
    execution_ms INTEGER,
    conversation_json TEXT,
    PRIMARY KEY (run_id, task_id)
);

CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    task_id TEXT,
    url TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sources_run ON sources(run_id);

CREATE TABLE IF NOT EXISTS run_events (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    task_id TEXT,
    event_type TEXT NOT NULL,
    data_json TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);

CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    html TEXT NOT NULL,
    run_ids_json TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Runs:    &SQLiteRunStore{db: db},
		Results: &SQLiteResultStore{db: db},
		Sources: &SQLiteSourceStore{db: db},
		Events:  &SQLiteEventStore{db: db},
		Reports: &SQLiteReportStore{db: db},
		closer:  db.Close,
	}, nil
}

// =============================================================================
// SQLiteRunStore
// =============================================================================

type SQLiteRunStore struct {
	db *sql.DB
}

func (s *SQLiteRunStore) CreateRun(run Run) error {
	if run.Status == "" {
		run.Status = "running"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, query, query_type, complexity, strategy, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Query, run.QueryType, run.Complexity, run.Strategy, run.Status, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) CompleteRun(id, status, essay string, durationMs int64) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, essay = ?, duration_ms = ?, finished_at = ? WHERE id = ?`,
		status, essay, durationMs, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func (s *SQLiteRunStore) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, query, query_type, complexity, strategy, status, essay, started_at, finished_at, duration_ms FROM runs WHERE id = ?`,
		id,
	)
	return scanRun(row)
}

func (s *SQLiteRunStore) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, query, query_type, complexity, strategy, status, essay, started_at, finished_at, duration_ms FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var essay sql.NullString
	var finishedAt sql.NullTime
	var durationMs sql.NullInt64

	err := row.Scan(&run.ID, &run.Query, &run.QueryType, &run.Complexity, &run.Strategy,
		&run.Status, &essay, &run.StartedAt, &finishedAt, &durationMs)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Essay = essay.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	run.DurationMs = durationMs.Int64
	return &run, nil
}

// =============================================================================
// SQLiteResultStore
// =============================================================================

type SQLiteResultStore struct {
	db *sql.DB
}

func (s *SQLiteResultStore) SaveResult(rec SubtaskRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO subtask_results
		 (run_id, task_id, status, tool_calls_used, insights, confidence, error_message, execution_ms, conversation_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TaskID, rec.Status, rec.ToolCallsUsed, rec.Insights, rec.Confidence,
		rec.ErrorMessage, rec.ExecutionMs, rec.ConversationJSON,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *SQLiteResultStore) GetResultsByRun(runID string) ([]SubtaskRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, task_id, status, tool_calls_used, insights, confidence, error_message, execution_ms, conversation_json
		 FROM subtask_results WHERE run_id = ? ORDER BY task_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var records []SubtaskRecord
	for rows.Next() {
		var rec SubtaskRecord
		var insights, errMsg, conversation sql.NullString
		var confidence sql.NullFloat64
		var executionMs sql.NullInt64
		if err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Status, &rec.ToolCallsUsed,
			&insights, &confidence, &errMsg, &executionMs, &conversation); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.Insights = insights.String
		rec.Confidence = confidence.Float64
		rec.ErrorMessage = errMsg.String
		rec.ExecutionMs = executionMs.Int64
		rec.ConversationJSON = conversation.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// SQLiteSourceStore
// =============================================================================

type SQLiteSourceStore struct {
	db *sql.DB
}

func (s *SQLiteSourceStore) AppendSources(runID, taskID string, urls []string) error {
	for _, url := range urls {
		if _, err := s.db.Exec(
			`INSERT INTO sources (run_id, task_id, url) VALUES (?, ?, ?)`,
			runID, taskID, url,
		); err != nil {
			return fmt.Errorf("append source: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSourceStore) GetSourcesByRun(runID string) ([]SourceRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, task_id, url, created_at FROM sources WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}
	defer rows.Close()

	var records []SourceRecord
	for rows.Next() {
		var rec SourceRecord
		var taskID sql.NullString
		if err := rows.Scan(&rec.RunID, &taskID, &rec.URL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		rec.TaskID = taskID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// SQLiteEventStore
// =============================================================================

type SQLiteEventStore struct {
	db *sql.DB
}

func (s *SQLiteEventStore) AppendEvent(event RunEvent) error {
	if event.ID == "" {
		event.ID = generateID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO run_events (id, run_id, task_id, event_type, data_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.RunID, nullable(event.TaskID), event.EventType, event.DataJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *SQLiteEventStore) GetEventsByRun(runID string) ([]RunEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, task_id, event_type, data_json, created_at FROM run_events WHERE run_id = ? ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var event RunEvent
		var taskID, dataJSON sql.NullString
		if err := rows.Scan(&event.ID, &event.RunID, &taskID, &event.EventType, &dataJSON, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.TaskID = taskID.String
		event.DataJSON = dataJSON.String
		events = append(events, event)
	}
	return events, rows.Err()
}

// =============================================================================
// SQLiteReportStore
// =============================================================================

type SQLiteReportStore struct {
	db *sql.DB
}

func (s *SQLiteReportStore) SaveReport(report Report) error {
	if report.ID == "" {
		report.ID = generateID()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	runIDs, err := json.Marshal(report.RunIDs)
	if err != nil {
		return fmt.Errorf("marshal run ids: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (id, title, html, run_ids_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		report.ID, report.Title, report.HTML, string(runIDs), report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *SQLiteReportStore) GetReport(id string) (*Report, error) {
	row := s.db.QueryRow(
		`SELECT id, title, html, run_ids_json, created_at FROM reports WHERE id = ?`,
		id,
	)
	return scanReport(row)
}

func (s *SQLiteReportStore) ListReports(limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, title, html, run_ids_json, created_at FROM reports ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

func scanReport(row rowScanner) (*Report, error) {
	var report Report
	var runIDsJSON sql.NullString
	if err := row.Scan(&report.ID, &report.Title, &report.HTML, &runIDsJSON, &report.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	if runIDsJSON.Valid && runIDsJSON.String != "" {
		if err := json.Unmarshal([]byte(runIDsJSON.String), &report.RunIDs); err != nil {
			return nil, fmt.Errorf("unmarshal run ids: %w", err)
		}
	}
	return &report, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
