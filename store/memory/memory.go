// Package memory provides an in-memory implementation of store.Store.
// It is the default driver (STORE_DRIVER=memory) and is suitable for tests
// and local development; state does not survive process restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	agents       map[string]*domain.Agent
	agentsBySlug map[string]string // slug -> agent id

	versions       map[string]*domain.AgentVersion
	versionsByAgent map[string][]string // agentId -> version ids, insertion order

	sessions map[string]*domain.Session
	sessionOrder []string

	runs map[string]*domain.Run

	events       map[string][]*domain.Event // runId -> events, seq order
	workflows    map[string]*domain.Workflow
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		agents:          make(map[string]*domain.Agent),
		agentsBySlug:    make(map[string]string),
		versions:        make(map[string]*domain.AgentVersion),
		versionsByAgent: make(map[string][]string),
		sessions:        make(map[string]*domain.Session),
		runs:            make(map[string]*domain.Run),
		events:          make(map[string][]*domain.Event),
		workflows:       make(map[string]*domain.Workflow),
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close(ctx context.Context) error { return nil }

// --- Agents ---

func cloneAgent(a *domain.Agent) *domain.Agent {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Metadata.Domains = append([]string(nil), a.Metadata.Domains...)
	clone.Metadata.Capabilities = append([]string(nil), a.Metadata.Capabilities...)
	clone.Metadata.Tags = append([]string(nil), a.Metadata.Tags...)
	return &clone
}

func (s *Store) CreateAgent(ctx context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agentsBySlug[a.Slug]; exists {
		return store.ErrDuplicateKey
	}
	s.agents[a.ID] = cloneAgent(a)
	s.agentsBySlug[a.Slug] = a.ID
	return nil
}

func (s *Store) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[a.ID]; !exists {
		return store.ErrNotFound
	}
	s.agents[a.ID] = cloneAgent(a)
	s.agentsBySlug[a.Slug] = a.ID
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAgent(a), nil
}

func (s *Store) GetAgentBySlug(ctx context.Context, slug string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.agentsBySlug[slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAgent(s.agents[id]), nil
}

func (s *Store) FindAgentByNameCI(ctx context.Context, name string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := strings.ToLower(name)
	for _, a := range s.orderedAgentsLocked() {
		if strings.ToLower(a.Name) == want {
			return cloneAgent(a), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindAgentsByTags(ctx context.Context, tags []string) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	var out []*domain.Agent
	for _, a := range s.orderedAgentsLocked() {
		for _, t := range a.Metadata.Tags {
			if _, ok := want[strings.ToLower(strings.TrimSpace(t))]; ok {
				out = append(out, cloneAgent(a))
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListAgents(ctx context.Context, includeHidden bool) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Agent
	for _, a := range s.orderedAgentsLocked() {
		if !includeHidden && a.Metadata.Hidden {
			continue
		}
		out = append(out, cloneAgent(a))
	}
	return out, nil
}

// orderedAgentsLocked returns agents sorted by id for deterministic iteration.
// Callers must hold s.mu (read or write).
func (s *Store) orderedAgentsLocked() []*domain.Agent {
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*domain.Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.agents[id])
	}
	return out
}

// --- Agent versions ---

func cloneVersion(v *domain.AgentVersion) *domain.AgentVersion {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Resources = append([]string(nil), v.Resources...)
	clone.RoutingHints.Tags = append([]string(nil), v.RoutingHints.Tags...)
	return &clone
}

func (s *Store) CreateAgentVersion(ctx context.Context, v *domain.AgentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.versionsByAgent[v.AgentID] {
		if s.versions[id].Version == v.Version {
			return store.ErrDuplicateKey
		}
	}
	s.versions[v.ID] = cloneVersion(v)
	s.versionsByAgent[v.AgentID] = append(s.versionsByAgent[v.AgentID], v.ID)
	return nil
}

func (s *Store) GetAgentVersion(ctx context.Context, id string) (*domain.AgentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneVersion(v), nil
}

func (s *Store) LatestAgentVersion(ctx context.Context, agentID string) (*domain.AgentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.versionsByAgent[agentID]
	if len(ids) == 0 {
		return nil, store.ErrNotFound
	}
	var latest *domain.AgentVersion
	for _, id := range ids {
		v := s.versions[id]
		if latest == nil || v.Version > latest.Version {
			latest = v
		}
	}
	return cloneVersion(latest), nil
}

func (s *Store) ListAgentVersions(ctx context.Context, agentID string) ([]*domain.AgentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.versionsByAgent[agentID]
	out := make([]*domain.AgentVersion, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneVersion(s.versions[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return store.ErrDuplicateKey
	}
	clone := *sess
	s.sessions[sess.ID] = &clone
	s.sessionOrder = append(s.sessionOrder, sess.ID)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Session, 0, len(s.sessionOrder))
	for i := len(s.sessionOrder) - 1; i >= 0; i-- {
		sess := s.sessions[s.sessionOrder[i]]
		clone := *sess
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Runs ---

func cloneRun(r *domain.Run) *domain.Run {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Input.Context != nil {
		clone.Input.Context = make(map[string]any, len(r.Input.Context))
		for k, v := range r.Input.Context {
			clone.Input.Context[k] = v
		}
	}
	if r.Output != nil {
		out := *r.Output
		clone.Output = &out
	}
	if r.Error != nil {
		e := *r.Error
		clone.Error = &e
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		clone.EndedAt = &t
	}
	return &clone
}

func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; exists {
		return store.ErrDuplicateKey
	}
	s.runs[r.ID] = cloneRun(r)
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; !exists {
		return store.ErrNotFound
	}
	s.runs[r.ID] = cloneRun(r)
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRun(r), nil
}

func (s *Store) ListRunsBySession(ctx context.Context, sessionID string) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Run
	for _, r := range s.runs {
		if r.SessionID == sessionID {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) CountRunsByRoot(ctx context.Context, rootRunID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.runs {
		if r.RootRunID == rootRunID {
			n++
		}
	}
	return n, nil
}

// --- Events ---

func (s *Store) AppendEvent(ctx context.Context, ev *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events[ev.RunID] {
		if existing.Seq == ev.Seq {
			return store.ErrDuplicateKey
		}
	}
	clone := *ev
	s.events[ev.RunID] = append(s.events[ev.RunID], &clone)
	return nil
}

func (s *Store) MaxEventSeq(ctx context.Context, runID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, ev := range s.events[runID] {
		if ev.Seq > max {
			max = ev.Seq
		}
	}
	return max, nil
}

func (s *Store) ListEvents(ctx context.Context, runID string, sinceSeq int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Event
	for _, ev := range s.events[runID] {
		if ev.Seq > sinceSeq {
			clone := *ev
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// --- Workflows ---

func (s *Store) SaveWorkflow(ctx context.Context, w *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *w
	clone.Nodes = append([]domain.WorkflowNode(nil), w.Nodes...)
	s.workflows[w.ID] = &clone
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *w
	clone.Nodes = append([]domain.WorkflowNode(nil), w.Nodes...)
	return &clone, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		clone := *w
		clone.Nodes = append([]domain.WorkflowNode(nil), w.Nodes...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ store.Store = (*Store)(nil)
