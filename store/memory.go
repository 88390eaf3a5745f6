package store

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Runs:    &MemoryRunStore{runs: make(map[string]*Run)},
		Results: &MemoryResultStore{results: make(map[string][]SubtaskRecord)},
		Sources: &MemorySourceStore{sources: make(map[string][]SourceRecord)},
		Events:  &MemoryEventStore{events: make(map[string][]RunEvent)},
		Reports: &MemoryReportStore{reports: make(map[string]*Report)},
	}
}

// =============================================================================
// MemoryRunStore
// =============================================================================

type MemoryRunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func (s *MemoryRunStore) CreateRun(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.Status == "" {
		run.Status = "running"
	}
	s.runs[run.ID] = &run
	return nil
}

func (s *MemoryRunStore) CompleteRun(id, status, essay string, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	now := time.Now()
	run.Status = status
	run.Essay = essay
	run.DurationMs = durationMs
	run.FinishedAt = &now
	return nil
}

func (s *MemoryRunStore) GetRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryRunStore) ListRuns(limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// =============================================================================
// MemoryResultStore
// =============================================================================

type MemoryResultStore struct {
	mu      sync.Mutex
	results map[string][]SubtaskRecord
}

func (s *MemoryResultStore) SaveResult(rec SubtaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[rec.RunID] = append(s.results[rec.RunID], rec)
	return nil
}

func (s *MemoryResultStore) GetResultsByRun(runID string) ([]SubtaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SubtaskRecord, len(s.results[runID]))
	copy(records, s.results[runID])
	return records, nil
}

// =============================================================================
// MemorySourceStore
// =============================================================================

type MemorySourceStore struct {
	mu      sync.Mutex
	sources map[string][]SourceRecord
}

func (s *MemorySourceStore) AppendSources(runID, taskID string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, url := range urls {
		s.sources[runID] = append(s.sources[runID], SourceRecord{
			RunID:     runID,
			TaskID:    taskID,
			URL:       url,
			CreatedAt: now,
		})
	}
	return nil
}

func (s *MemorySourceStore) GetSourcesByRun(runID string) ([]SourceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SourceRecord, len(s.sources[runID]))
	copy(records, s.sources[runID])
	return records, nil
}

// =============================================================================
// MemoryEventStore
// =============================================================================

type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string][]RunEvent
}

func (s *MemoryEventStore) AppendEvent(event RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = generateID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.events[event.RunID] = append(s.events[event.RunID], event)
	return nil
}

func (s *MemoryEventStore) GetEventsByRun(runID string) ([]RunEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]RunEvent, len(s.events[runID]))
	copy(events, s.events[runID])
	return events, nil
}

// =============================================================================
// MemoryReportStore
// =============================================================================

type MemoryReportStore struct {
	mu      sync.Mutex
	reports map[string]*Report
}

func (s *MemoryReportStore) SaveReport(report Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.ID == "" {
		report.ID = generateID()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	s.reports[report.ID] = &report
	return nil
}

func (s *MemoryReportStore) GetReport(id string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s not found", id)
	}
	copied := *report
	return &copied, nil
}

func (s *MemoryReportStore) ListReports(limit int) ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := make([]Report, 0, len(s.reports))
	for _, report := range s.reports {
		reports = append(reports, *report)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// =============================================================================
// Helpers
// =============================================================================

func generateID() string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 12)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))]
	}
	return string(b)
}
