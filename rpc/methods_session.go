package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
)

const (
	defaultSessionListLimit = 50
	minSessionListLimit     = 1
	maxSessionListLimit     = 200
)

func (s *Server) sessionCreate(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		Title string `json:"title"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sess := &domain.Session{ID: uuid.NewString(), Title: p.Title, CreatedAt: time.Now()}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		return nil, err
	}
	return map[string]any{"sessionId": sess.ID}, nil
}

func (s *Server) sessionList(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit == 0 {
		limit = defaultSessionListLimit
	}
	if limit < minSessionListLimit {
		limit = minSessionListLimit
	}
	if limit > maxSessionListLimit {
		limit = maxSessionListLimit
	}
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessions": sessions}, nil
}
