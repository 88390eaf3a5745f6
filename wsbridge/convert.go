package wsbridge

import (
	"surveyor/store"
)

const timeFormat = "2006-01-02T15:04:05Z"

func runToInfo(r *store.Run) RunInfo {
	info := RunInfo{
		ID:         r.ID,
		Query:      r.Query,
		QueryType:  r.QueryType,
		Complexity: r.Complexity,
		Status:     r.Status,
		StartedAt:  r.StartedAt.UTC().Format(timeFormat),
		DurationMs: r.DurationMs,
	}
	if r.FinishedAt != nil {
		info.FinishedAt = r.FinishedAt.UTC().Format(timeFormat)
	}
	return info
}

func subtaskToInfo(r *store.SubtaskRecord) SubtaskInfo {
	return SubtaskInfo{
		TaskID:        r.TaskID,
		Status:        r.Status,
		ToolCallsUsed: r.ToolCallsUsed,
		Insights:      r.Insights,
		Confidence:    r.Confidence,
		ErrorMessage:  r.ErrorMessage,
		ExecutionMs:   r.ExecutionMs,
	}
}

func eventToInfo(e *store.RunEvent) RunEventInfo {
	return RunEventInfo{
		ID:        e.ID,
		RunID:     e.RunID,
		TaskID:    e.TaskID,
		EventType: e.EventType,
		DataJSON:  e.DataJSON,
		CreatedAt: e.CreatedAt.UTC().Format(timeFormat),
	}
}
