package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
)

func (s *Server) workflowSave(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		WorkflowID  string                `json:"workflowId"`
		Name        string                `json:"name"`
		Description string                `json:"description"`
		Nodes       []domain.WorkflowNode `json:"nodes"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, engineerr.NewValidation("name is required")
	}
	wf := &domain.Workflow{
		ID:          p.WorkflowID,
		Name:        p.Name,
		Description: p.Description,
		Nodes:       p.Nodes,
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if err := s.store.SaveWorkflow(r.Context(), wf); err != nil {
		return nil, err
	}
	return map[string]any{"workflowId": wf.ID}, nil
}

func (s *Server) workflowList(r *http.Request, params json.RawMessage) (any, error) {
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflows": workflows}, nil
}

func (s *Server) workflowGet(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		WorkflowID string `json:"workflowId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.WorkflowID == "" {
		return nil, engineerr.NewValidation("workflowId is required")
	}
	wf, err := s.store.GetWorkflow(r.Context(), p.WorkflowID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflow": wf}, nil
}

func (s *Server) workflowRun(r *http.Request, params json.RawMessage) (any, error) {
	var p struct {
		WorkflowID  string `json:"workflowId"`
		SessionID   string `json:"sessionId"`
		UserMessage string `json:"userMessage"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.WorkflowID == "" || p.SessionID == "" {
		return nil, engineerr.NewValidation("workflowId and sessionId are required")
	}
	result, err := s.workflows.Run(r.Context(), p.WorkflowID, p.SessionID, p.UserMessage)
	if err != nil {
		return nil, err
	}
	return map[string]any{"runs": result.Runs, "finalOutput": result.FinalOutput}, nil
}
