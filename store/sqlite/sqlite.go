// Package sqlite provides a SQLite-backed implementation of store.Store for
// local development (STORE_DRIVER=sqlite). It follows the same
// CREATE-TABLE-IF-NOT-EXISTS-plus-JSON-blob shape as the teacher codebase's
// checkpoint saver: each collection is a table with a few indexed lookup
// columns plus the full document as a JSON blob. Agent domains and tags live
// only in the blob, so they have no column and no index.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/store"
)

const (
	createAgents = `CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT,
		hidden INTEGER NOT NULL DEFAULT 0,
		doc BLOB NOT NULL
	)`
	createAgentTagsIdx = `CREATE INDEX IF NOT EXISTS idx_agents_role ON agents(role)`

	createVersions = `CREATE TABLE IF NOT EXISTS agent_versions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		doc BLOB NOT NULL,
		UNIQUE(agent_id, version)
	)`
	createVersionsIdx = `CREATE INDEX IF NOT EXISTS idx_versions_agent ON agent_versions(agent_id, version DESC)`

	createSessions = `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		doc BLOB NOT NULL
	)`

	createRuns = `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		root_run_id TEXT NOT NULL,
		parent_run_id TEXT,
		started_at TEXT NOT NULL,
		doc BLOB NOT NULL
	)`
	createRunsSessionIdx = `CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at DESC)`
	createRunsParentIdx  = `CREATE INDEX IF NOT EXISTS idx_runs_parent ON runs(parent_run_id)`
	createRunsRootIdx    = `CREATE INDEX IF NOT EXISTS idx_runs_root ON runs(root_run_id)`

	createEvents = `CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		ts TEXT NOT NULL,
		doc BLOB NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`
	createEventsTsIdx = `CREATE INDEX IF NOT EXISTS idx_events_ts ON events(run_id, ts)`

	createWorkflows = `CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		doc BLOB NOT NULL
	)`
)

// Store is a SQLite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewFromDB(db)
}

// NewFromDB wraps an already-open *sql.DB using the sqlite3 driver.
func NewFromDB(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlite: db is nil")
	}
	for _, stmt := range []string{
		createAgents, createAgentTagsIdx,
		createVersions, createVersionsIdx,
		createSessions,
		createRuns, createRunsSessionIdx, createRunsParentIdx, createRunsRootIdx,
		createEvents, createEventsTsIdx,
		createWorkflows,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close(ctx context.Context) error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, a *domain.Agent) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, slug, name, role, hidden, doc) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Slug, a.Name, string(a.Metadata.Role), boolToInt(a.Metadata.Hidden), doc)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET slug=?, name=?, role=?, hidden=?, doc=? WHERE id=?`,
		a.Slug, a.Name, string(a.Metadata.Role), boolToInt(a.Metadata.Hidden), doc, a.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM agents WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var a domain.Agent
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAgentBySlug(ctx context.Context, slug string) (*domain.Agent, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM agents WHERE slug=?`, slug).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var a domain.Agent
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) FindAgentByNameCI(ctx context.Context, name string) (*domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM agents WHERE LOWER(name) = LOWER(?) LIMIT 1`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, store.ErrNotFound
	}
	var doc []byte
	if err := rows.Scan(&doc); err != nil {
		return nil, err
	}
	var a domain.Agent
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) FindAgentsByTags(ctx context.Context, tags []string) ([]*domain.Agent, error) {
	all, err := s.ListAgents(ctx, true)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	var out []*domain.Agent
	for _, a := range all {
		for _, t := range a.Metadata.Tags {
			if _, ok := want[strings.ToLower(strings.TrimSpace(t))]; ok {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListAgents(ctx context.Context, includeHidden bool) ([]*domain.Agent, error) {
	query := `SELECT doc FROM agents`
	if !includeHidden {
		query += ` WHERE hidden = 0`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Agent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var a domain.Agent
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- Agent versions ---

func (s *Store) CreateAgentVersion(ctx context.Context, v *domain.AgentVersion) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_versions (id, agent_id, version, doc) VALUES (?, ?, ?, ?)`,
		v.ID, v.AgentID, v.Version, doc)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) GetAgentVersion(ctx context.Context, id string) (*domain.AgentVersion, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM agent_versions WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v domain.AgentVersion
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) LatestAgentVersion(ctx context.Context, agentID string) (*domain.AgentVersion, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM agent_versions WHERE agent_id=? ORDER BY version DESC LIMIT 1`, agentID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v domain.AgentVersion
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListAgentVersions(ctx context.Context, agentID string) ([]*domain.AgentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM agent_versions WHERE agent_id=? ORDER BY version DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AgentVersion
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v domain.AgentVersion
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, doc) VALUES (?, ?, ?)`,
		sess.ID, sess.CreatedAt.Format(timeLayout), doc)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM sessions WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(doc, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	query := `SELECT doc FROM sessions ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		query += ` LIMIT ?`
		rows, err = s.db.QueryContext(ctx, query, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sess domain.Session
		if err := json.Unmarshal(doc, &sess); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// --- Runs ---

func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, root_run_id, parent_run_id, started_at, doc) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.RootRunID, nullableString(r.ParentRunID), r.StartedAt.Format(timeLayout), doc)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) UpdateRun(ctx context.Context, r *domain.Run) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET doc=? WHERE id=?`, doc, r.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM runs WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r domain.Run
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRunsBySession(ctx context.Context, sessionID string) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM runs WHERE session_id=? ORDER BY started_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Run
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r domain.Run
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) CountRunsByRoot(ctx context.Context, rootRunID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE root_run_id=?`, rootRunID).Scan(&n)
	return n, err
}

// --- Events ---

func (s *Store) AppendEvent(ctx context.Context, ev *domain.Event) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, ts, doc) VALUES (?, ?, ?, ?)`,
		ev.RunID, ev.Seq, ev.TS.Format(timeLayout), doc)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) MaxEventSeq(ctx context.Context, runID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE run_id=?`, runID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

func (s *Store) ListEvents(ctx context.Context, runID string, sinceSeq int) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM events WHERE run_id=? AND seq > ? ORDER BY seq ASC`, runID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ev domain.Event
		if err := json.Unmarshal(doc, &ev); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// --- Workflows ---

func (s *Store) SaveWorkflow(ctx context.Context, w *domain.Workflow) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, doc) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc=excluded.doc`,
		w.ID, doc)
	return err
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM workflows WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var w domain.Workflow
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM workflows ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Workflow
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var w domain.Workflow
		if err := json.Unmarshal(doc, &w); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.Store = (*Store)(nil)
