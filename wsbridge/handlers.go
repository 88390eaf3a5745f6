package wsbridge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"surveyor/streamers"
)

func (s *Server) handleRequest(c *conn, env *Envelope) (*Envelope, error) {
	switch env.Type {
	case TypeRunResearch:
		return s.handleRunResearch(env)
	case TypeGetRuns:
		return s.handleGetRuns(env)
	case TypeGetRun:
		return s.handleGetRun(env)
	case TypeGetEvents:
		return s.handleGetEvents(env)
	default:
		return nil, fmt.Errorf("unhandled message type: %s", env.Type)
	}
}

func (s *Server) handleRunResearch(env *Envelope) (*Envelope, error) {
	var payload RunResearchPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode run_research: %w", err)
	}

	if strings.TrimSpace(payload.Query) == "" {
		return NewResponse(env.RequestID, TypeRunResearchAck, &RunResearchAckPayload{
			Accepted: false,
			Reason:   "query is empty",
		})
	}
	if s.runner == nil {
		return NewResponse(env.RequestID, TypeRunResearchAck, &RunResearchAckPayload{
			Accepted: false,
			Reason:   "no research runner configured",
		})
	}

	// The WS handler captures the run ID when RunStarted fires
	wsHandler := NewWSResearchHandler(s)
	handler := streamers.ResearchHandler(wsHandler)
	if s.stores != nil && s.stores.Events != nil {
		handler = streamers.NewStoringResearchHandler(wsHandler, s.stores.Events)
	}

	// Run research in background
	go func() {
		if _, err := s.runner.Run(context.Background(), payload.Query, handler); err != nil {
			log.Printf("Research run failed: %v", err)
			completeEnv, _ := NewEvent(TypeRunComplete, &RunCompletePayload{
				RunID:  wsHandler.RunID(),
				Status: "failed",
				Error:  err.Error(),
			})
			s.Broadcast(completeEnv)
		} else {
			completeEnv, _ := NewEvent(TypeRunComplete, &RunCompletePayload{
				RunID:  wsHandler.RunID(),
				Status: "completed",
			})
			s.Broadcast(completeEnv)
		}
	}()

	// Wait for the run ID (set when the orchestrator calls RunStarted)
	runID, err := wsHandler.WaitForRunID(runStartTimeout)
	if err != nil {
		return NewResponse(env.RequestID, TypeRunResearchAck, &RunResearchAckPayload{
			Accepted: false,
			Reason:   fmt.Sprintf("run failed to start: %v", err),
		})
	}

	return NewResponse(env.RequestID, TypeRunResearchAck, &RunResearchAckPayload{
		Accepted: true,
		RunID:    runID,
	})
}

func (s *Server) handleGetRuns(env *Envelope) (*Envelope, error) {
	var payload GetRunsPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_runs: %w", err)
	}

	limit := payload.Limit
	if limit <= 0 {
		limit = 50
	}

	runs, err := s.stores.Runs.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = runToInfo(&r)
	}

	return NewResponse(env.RequestID, TypeGetRunsResult, &GetRunsResultPayload{
		Runs: infos,
	})
}

func (s *Server) handleGetRun(env *Envelope) (*Envelope, error) {
	var payload GetRunPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_run: %w", err)
	}

	run, err := s.stores.Runs.GetRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	results, err := s.stores.Results.GetResultsByRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}

	sources, err := s.stores.Sources.GetSourcesByRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}

	subtasks := make([]SubtaskInfo, len(results))
	for i, r := range results {
		subtasks[i] = subtaskToInfo(&r)
	}
	urls := make([]string, len(sources))
	for i, src := range sources {
		urls[i] = src.URL
	}

	return NewResponse(env.RequestID, TypeGetRunResult, &GetRunResultPayload{
		Run:      runToInfo(run),
		Essay:    run.Essay,
		Subtasks: subtasks,
		Sources:  urls,
	})
}

func (s *Server) handleGetEvents(env *Envelope) (*Envelope, error) {
	var payload GetEventsPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_events: %w", err)
	}

	events, err := s.stores.Events.GetEventsByRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	infos := make([]RunEventInfo, len(events))
	for i, e := range events {
		infos[i] = eventToInfo(&e)
	}

	return NewResponse(env.RequestID, TypeGetEventsResult, &GetEventsResultPayload{
		Events: infos,
	})
}
