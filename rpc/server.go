package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-agent-go/engine"
	"trpc.group/trpc-go/trpc-agent-go/internal/xlog"
	"trpc.group/trpc-go/trpc-agent-go/store"
	"trpc.group/trpc-go/trpc-agent-go/workflow"
)

// Server dispatches JSON-RPC 2.0 requests to the named methods of §6 and
// serves the well-known agent-card endpoint.
type Server struct {
	store     store.Store
	engine    *engine.Engine
	workflows *workflow.Runner
	methods   map[string]methodFunc
}

// methodFunc handles one JSON-RPC method's params and returns its result.
type methodFunc func(r *http.Request, params json.RawMessage) (any, error)

// New builds a Server wired to s and eng.
func New(s store.Store, eng *engine.Engine) *Server {
	srv := &Server{store: s, engine: eng, workflows: workflow.New(s, eng)}
	srv.methods = map[string]methodFunc{
		"session.create": srv.sessionCreate,
		"session.list":   srv.sessionList,

		"agent.list":              srv.agentList,
		"agent.get":               srv.agentGet,
		"agent.version.get":       srv.agentVersionGet,
		"agent.updatePrompt":      srv.agentUpdatePrompt,
		"agent.setActiveVersion":  srv.agentSetActiveVersion,

		"run.start":  srv.runStart,
		"run.get":    srv.runGet,
		"run.events": srv.runEvents,
		"run.tree":   srv.runTree,

		"workflow.save": srv.workflowSave,
		"workflow.list": srv.workflowList,
		"workflow.get":  srv.workflowGet,
		"workflow.run":  srv.workflowRun,
	}
	return srv
}

// Router builds the *mux.Router serving /rpc and the well-known endpoint,
// wrapped in a permissive CORS handler matching the teacher's server
// packages' use of github.com/rs/cors for its HTTP front doors.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/rpc", s.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/.well-known/agent-card.json", s.handleWellKnown).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed JSON-RPC envelope", http.StatusBadRequest)
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		http.Error(w, "malformed JSON-RPC envelope", http.StatusBadRequest)
		return
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		writeJSON(w, newError(req.ID, codeMethodNotFound, "method not found: "+req.Method))
		return
	}

	result, err := handler(r, req.Params)
	if err != nil {
		xlog.Warnf("rpc: %s failed: %v", req.Method, err)
		writeJSON(w, newError(req.ID, codeServerError, err.Error()))
		return
	}
	writeJSON(w, newResult(req.ID, result))
}

func (s *Server) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		http.Error(w, "slug is required", http.StatusBadRequest)
		return
	}
	agent, err := s.store.GetAgentBySlug(r.Context(), slug)
	if err != nil || agent.Metadata.Card == nil {
		http.Error(w, "agent or card not found", http.StatusNotFound)
		return
	}
	writeJSON(w, agent.Metadata.Card)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
