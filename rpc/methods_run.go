package rpc

import (
	"encoding/json"
	"net/http"

	"trpc.group/trpc-go/trpc-agent-go/engine"
	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
)

func (s *Server) runStart(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		SessionID   string         `json:"sessionId"`
		UserMessage string         `json:"userMessage"`
		AgentSlug   string         `json:"agentSlug"`
		AgentID     string         `json:"agentId"`
		ParentRunID string         `json:"parentRunId"`
		Context     map[string]any `json:"context"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" || p.UserMessage == "" {
		return nil, engineerr.NewValidation("sessionId and userMessage are required")
	}

	run, err := s.engine.Start(r.Context(), engine.StartOptions{
		SessionID:   p.SessionID,
		UserMessage: p.UserMessage,
		AgentSlug:   p.AgentSlug,
		AgentID:     p.AgentID,
		ParentRunID: p.ParentRunID,
		Context:     p.Context,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"runId": run.ID}, nil
}

func (s *Server) runGet(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		RunID string `json:"runId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.RunID == "" {
		return nil, engineerr.NewValidation("runId is required")
	}
	run, err := s.store.GetRun(r.Context(), p.RunID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"run": run}, nil
}

func (s *Server) runEvents(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		RunID    string `json:"runId"`
		SinceSeq int    `json:"sinceSeq"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.RunID == "" {
		return nil, engineerr.NewValidation("runId is required")
	}
	events, err := s.store.ListEvents(r.Context(), p.RunID, p.SinceSeq)
	if err != nil {
		return nil, err
	}
	nextSeq := p.SinceSeq
	if len(events) > 0 {
		nextSeq = events[len(events)-1].Seq
	}
	return map[string]any{"events": events, "nextSeq": nextSeq}, nil
}

func (s *Server) runTree(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, engineerr.NewValidation("sessionId is required")
	}
	runs, err := s.store.ListRunsBySession(r.Context(), p.SessionID)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		entry := map[string]any{"run": run}
		if run.AgentID != "" {
			if agent, err := s.store.GetAgent(r.Context(), run.AgentID); err == nil {
				entry["agentSlug"] = agent.Slug
				entry["agentName"] = agent.Name
			}
		}
		out = append(out, entry)
	}
	return map[string]any{"runs": out}, nil
}
