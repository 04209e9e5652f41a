package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
)

func (s *Server) agentList(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		IncludeHidden bool `json:"includeHidden"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	agents, err := s.store.ListAgents(r.Context(), p.IncludeHidden)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agents": agents}, nil
}

func (s *Server) agentGet(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		AgentID string `json:"agentId"`
		Slug    string `json:"slug"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	agent, err := s.lookupAgent(r, p.AgentID, p.Slug)
	if err != nil {
		return nil, err
	}

	active, err := s.store.GetAgentVersion(r.Context(), agent.ActiveVersionID)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListAgentVersions(r.Context(), agent.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent": agent, "activeVersion": active, "versions": versions}, nil
}

func (s *Server) lookupAgent(r *http.Request, agentID, slug string) (*domain.Agent, error) {
	if agentID != "" {
		return s.store.GetAgent(r.Context(), agentID)
	}
	if slug != "" {
		return s.store.GetAgentBySlug(r.Context(), slug)
	}
	return nil, engineerr.NewValidation("agentId or slug is required")
}

func (s *Server) agentVersionGet(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		VersionID string `json:"versionId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.VersionID == "" {
		return nil, engineerr.NewValidation("versionId is required")
	}
	version, err := s.store.GetAgentVersion(r.Context(), p.VersionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"version": version}, nil
}

func (s *Server) agentUpdatePrompt(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		AgentID         string `json:"agentId"`
		NewSystemPrompt string `json:"newSystemPrompt"`
		Editor          string `json:"editor"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.AgentID == "" || p.NewSystemPrompt == "" {
		return nil, engineerr.NewValidation("agentId and newSystemPrompt are required")
	}

	agent, err := s.store.GetAgent(r.Context(), p.AgentID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestAgentVersion(r.Context(), agent.ID)
	if err != nil {
		return nil, err
	}

	createdBy := domain.CreatedByUser
	if p.Editor == "" {
		createdBy = domain.CreatedBySystem
	}
	newVersion := &domain.AgentVersion{
		ID:           uuid.NewString(),
		AgentID:      agent.ID,
		Version:      latest.Version + 1,
		SystemPrompt: p.NewSystemPrompt,
		Resources:    latest.Resources,
		IOSchema:     latest.IOSchema,
		RoutingHints: latest.RoutingHints,
		CreatedAt:    time.Now(),
		CreatedBy:    createdBy,
	}
	if err := s.store.CreateAgentVersion(r.Context(), newVersion); err != nil {
		return nil, err
	}
	agent.ActiveVersionID = newVersion.ID
	agent.UpdatedAt = time.Now()
	if err := s.store.UpdateAgent(r.Context(), agent); err != nil {
		return nil, err
	}
	return map[string]any{"agentVersionId": newVersion.ID, "version": newVersion.Version}, nil
}

func (s *Server) agentSetActiveVersion(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		AgentID   string `json:"agentId"`
		VersionID string `json:"versionId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.AgentID == "" || p.VersionID == "" {
		return nil, engineerr.NewValidation("agentId and versionId are required")
	}

	agent, err := s.store.GetAgent(r.Context(), p.AgentID)
	if err != nil {
		return nil, err
	}
	version, err := s.store.GetAgentVersion(r.Context(), p.VersionID)
	if err != nil {
		return nil, err
	}
	if version.AgentID != agent.ID {
		return nil, engineerr.NewValidation("versionId does not belong to agentId")
	}
	agent.ActiveVersionID = version.ID
	agent.UpdatedAt = time.Now()
	if err := s.store.UpdateAgent(r.Context(), agent); err != nil {
		return nil, err
	}
	return map[string]any{"activeVersionId": agent.ActiveVersionID}, nil
}
