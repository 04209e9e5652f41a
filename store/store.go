// Package store defines the typed CRUD gateway over the engine's six
// persisted collections (spec §6): agents, agent_versions, sessions, runs,
// events and workflows. Concrete drivers live in store/memory, store/sqlite
// and store/mongo; all three satisfy the same Store interface so the Run
// Executor and RPC surface never depend on a specific backend.
package store

import (
	"context"
	"errors"

	"trpc.group/trpc-go/trpc-agent-go/domain"
)

// ErrNotFound is returned by Get-style methods when no matching document exists.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateKey is returned when an insert would violate a unique index
// (agents.slug, agent_versions.(agentId,version), events.(runId,seq)).
var ErrDuplicateKey = errors.New("store: duplicate key")

// Store is the typed CRUD gateway the rest of the engine depends on.
type Store interface {
	AgentStore
	AgentVersionStore
	SessionStore
	RunStore
	EventStore
	WorkflowStore

	// Close releases any underlying connection/handle. Safe to call once.
	Close(ctx context.Context) error
}

// AgentStore is typed CRUD over the agents collection. The slug field is
// uniquely indexed; role/domains/tags are query-indexed (spec §6).
type AgentStore interface {
	CreateAgent(ctx context.Context, a *domain.Agent) error
	UpdateAgent(ctx context.Context, a *domain.Agent) error
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	GetAgentBySlug(ctx context.Context, slug string) (*domain.Agent, error)
	// FindAgentByNameCI returns the first agent whose name matches
	// case-insensitively, or ErrNotFound.
	FindAgentByNameCI(ctx context.Context, name string) (*domain.Agent, error)
	// FindAgentsByTags returns agents whose metadata tags intersect tags.
	FindAgentsByTags(ctx context.Context, tags []string) ([]*domain.Agent, error)
	// ListAgents returns all agents, optionally including hidden ones.
	ListAgents(ctx context.Context, includeHidden bool) ([]*domain.Agent, error)
}

// AgentVersionStore is typed CRUD over the append-only agent_versions
// collection. (agentId, version) is uniquely indexed (spec §6).
type AgentVersionStore interface {
	CreateAgentVersion(ctx context.Context, v *domain.AgentVersion) error
	GetAgentVersion(ctx context.Context, id string) (*domain.AgentVersion, error)
	// LatestAgentVersion returns the highest-version AgentVersion for agentID.
	LatestAgentVersion(ctx context.Context, agentID string) (*domain.AgentVersion, error)
	// ListAgentVersions returns all versions for agentID, version descending.
	ListAgentVersions(ctx context.Context, agentID string) ([]*domain.AgentVersion, error)
}

// SessionStore is typed CRUD over the sessions collection.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	// ListSessions returns the most recently created sessions first, capped at limit.
	ListSessions(ctx context.Context, limit int) ([]*domain.Session, error)
}

// RunStore is typed CRUD over the runs collection. (sessionId, startedAt
// DESC) and parentRunId are query-indexed (spec §6).
type RunStore interface {
	CreateRun(ctx context.Context, r *domain.Run) error
	UpdateRun(ctx context.Context, r *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	// ListRunsBySession returns runs for a session, startedAt descending.
	ListRunsBySession(ctx context.Context, sessionID string) ([]*domain.Run, error)
	// CountRunsByRoot returns the number of runs (including the root itself)
	// sharing rootRunID — used for spawn-cap bookkeeping (spec §4.5.5).
	CountRunsByRoot(ctx context.Context, rootRunID string) (int, error)
}

// EventStore is typed CRUD over the append-only events collection.
// (runId, seq) is uniquely indexed (spec §6).
type EventStore interface {
	// AppendEvent inserts ev as-is; callers (the event emitter, §4.1) are
	// responsible for having set ev.Seq to current-max+1 beforehand. A
	// concurrent duplicate seq insert returns ErrDuplicateKey.
	AppendEvent(ctx context.Context, ev *domain.Event) error
	// MaxEventSeq returns the highest seq recorded for runID, or 0 if none.
	MaxEventSeq(ctx context.Context, runID string) (int, error)
	// ListEvents returns events for runID with seq > sinceSeq, seq ascending.
	ListEvents(ctx context.Context, runID string, sinceSeq int) ([]*domain.Event, error)
}

// WorkflowStore is typed CRUD over the workflows collection.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, w *domain.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*domain.Workflow, error)
}
