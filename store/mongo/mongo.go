// Package mongo provides a MongoDB-backed implementation of store.Store
// (STORE_DRIVER=mongo), the closest analogue to this engine's original
// document-store design. The client construction follows the same
// option-functions-plus-registry shape as the teacher's storage/mongodb
// package: a Options/Option pair configures the client, RegisterInstance
// lets a process name a set of client options, and OpenFromInstance builds
// a client from the options registered under that name.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/store"
)

// Collection names (spec §6).
const (
	CollAgents        = "agents"
	CollAgentVersions = "agent_versions"
	CollSessions      = "sessions"
	CollRuns          = "runs"
	CollEvents        = "events"
	CollWorkflows     = "workflows"
)

// Options configures the Mongo client and target database.
type Options struct {
	URI      string
	Database string
}

// Option mutates Options.
type Option func(*Options)

// WithURI sets the Mongo connection URI.
func WithURI(uri string) Option { return func(o *Options) { o.URI = uri } }

// WithDatabase sets the target database name.
func WithDatabase(name string) Option { return func(o *Options) { o.Database = name } }

var (
	mu       sync.Mutex
	registry = make(map[string][]Option)
)

// RegisterInstance stores a named set of options for later lookup, mirroring
// the teacher's RegisterMongoDBInstance.
func RegisterInstance(name string, opts ...Option) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = append(registry[name], opts...)
}

// GetInstance returns the options registered under name.
func GetInstance(name string) ([]Option, bool) {
	mu.Lock()
	defer mu.Unlock()
	opts, ok := registry[name]
	return opts, ok
}

// ErrNoURI is returned when Open is called without a URI configured.
var ErrNoURI = errors.New("mongo: URI is empty")

// Store is a MongoDB-backed implementation of store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to Mongo and ensures the collection indexes required by
// spec §6 exist.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := &Options{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.URI == "" {
		return nil, ErrNoURI
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(cfg.Database)
	s := &Store{client: client, db: db}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFromInstance opens a client using options registered under name.
func OpenFromInstance(ctx context.Context, name string, extra ...Option) (*Store, error) {
	opts, ok := GetInstance(name)
	if !ok {
		return nil, fmt.Errorf("mongo: instance not found: %s", name)
	}
	return Open(ctx, append(opts, extra...)...)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	one := func(coll string, model mongo.IndexModel) error {
		_, err := s.db.Collection(coll).Indexes().CreateOne(ctx, model)
		return err
	}
	if err := one(CollAgents, mongo.IndexModel{
		Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	for _, key := range []string{"metadata.role", "metadata.domains", "metadata.tags"} {
		if err := one(CollAgents, mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}}); err != nil {
			return err
		}
	}
	if err := one(CollAgentVersions, mongo.IndexModel{
		Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "version", Value: -1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if err := one(CollRuns, mongo.IndexModel{
		Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "startedAt", Value: -1}},
	}); err != nil {
		return err
	}
	if err := one(CollRuns, mongo.IndexModel{Keys: bson.D{{Key: "parentRunId", Value: 1}}}); err != nil {
		return err
	}
	if err := one(CollEvents, mongo.IndexModel{
		Keys: bson.D{{Key: "runId", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	return one(CollEvents, mongo.IndexModel{Keys: bson.D{{Key: "runId", Value: 1}, {Key: "ts", Value: 1}}})
}

// Close disconnects the underlying Mongo client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, a *domain.Agent) error {
	_, err := s.db.Collection(CollAgents).InsertOne(ctx, a)
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	res, err := s.db.Collection(CollAgents).ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var a domain.Agent
	err := s.db.Collection(CollAgents).FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &a, err
}

func (s *Store) GetAgentBySlug(ctx context.Context, slug string) (*domain.Agent, error) {
	var a domain.Agent
	err := s.db.Collection(CollAgents).FindOne(ctx, bson.M{"slug": slug}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &a, err
}

func (s *Store) FindAgentByNameCI(ctx context.Context, name string) (*domain.Agent, error) {
	var a domain.Agent
	filter := bson.M{"name": bson.M{"$regex": "^" + regexQuoteMeta(name) + "$", "$options": "i"}}
	err := s.db.Collection(CollAgents).FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &a, err
}

func (s *Store) FindAgentsByTags(ctx context.Context, tags []string) ([]*domain.Agent, error) {
	cur, err := s.db.Collection(CollAgents).Find(ctx, bson.M{"metadata.tags": bson.M{"$in": tags}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.Agent
	for cur.Next(ctx) {
		var a domain.Agent
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cur.Err()
}

func (s *Store) ListAgents(ctx context.Context, includeHidden bool) ([]*domain.Agent, error) {
	filter := bson.M{}
	if !includeHidden {
		filter["metadata.hidden"] = bson.M{"$ne": true}
	}
	cur, err := s.db.Collection(CollAgents).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.Agent
	for cur.Next(ctx) {
		var a domain.Agent
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cur.Err()
}

// --- Agent versions ---

func (s *Store) CreateAgentVersion(ctx context.Context, v *domain.AgentVersion) error {
	_, err := s.db.Collection(CollAgentVersions).InsertOne(ctx, v)
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) GetAgentVersion(ctx context.Context, id string) (*domain.AgentVersion, error) {
	var v domain.AgentVersion
	err := s.db.Collection(CollAgentVersions).FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &v, err
}

func (s *Store) LatestAgentVersion(ctx context.Context, agentID string) (*domain.AgentVersion, error) {
	var v domain.AgentVersion
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	err := s.db.Collection(CollAgentVersions).FindOne(ctx, bson.M{"agentId": agentID}, opts).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &v, err
}

func (s *Store) ListAgentVersions(ctx context.Context, agentID string) ([]*domain.AgentVersion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: -1}})
	cur, err := s.db.Collection(CollAgentVersions).Find(ctx, bson.M{"agentId": agentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.AgentVersion
	for cur.Next(ctx) {
		var v domain.AgentVersion
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.Collection(CollSessions).InsertOne(ctx, sess)
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var sess domain.Session
	err := s.db.Collection(CollSessions).FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &sess, err
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(CollSessions).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.Session
	for cur.Next(ctx) {
		var sess domain.Session
		if err := cur.Decode(&sess); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, cur.Err()
}

// --- Runs ---

func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	_, err := s.db.Collection(CollRuns).InsertOne(ctx, r)
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) UpdateRun(ctx context.Context, r *domain.Run) error {
	res, err := s.db.Collection(CollRuns).ReplaceOne(ctx, bson.M{"_id": r.ID}, r)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	var r domain.Run
	err := s.db.Collection(CollRuns).FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &r, err
}

func (s *Store) ListRunsBySession(ctx context.Context, sessionID string) ([]*domain.Run, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	cur, err := s.db.Collection(CollRuns).Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.Run
	for cur.Next(ctx) {
		var r domain.Run
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (s *Store) CountRunsByRoot(ctx context.Context, rootRunID string) (int, error) {
	n, err := s.db.Collection(CollRuns).CountDocuments(ctx, bson.M{"rootRunId": rootRunID})
	return int(n), err
}

// --- Events ---

func (s *Store) AppendEvent(ctx context.Context, ev *domain.Event) error {
	_, err := s.db.Collection(CollEvents).InsertOne(ctx, ev)
	if isDuplicateKey(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) MaxEventSeq(ctx context.Context, runID string) (int, error) {
	var ev domain.Event
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	err := s.db.Collection(CollEvents).FindOne(ctx, bson.M{"runId": runID}, opts).Decode(&ev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ev.Seq, nil
}

func (s *Store) ListEvents(ctx context.Context, runID string, sinceSeq int) ([]*domain.Event, error) {
	filter := bson.M{"runId": runID, "seq": bson.M{"$gt": sinceSeq}}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cur, err := s.db.Collection(CollEvents).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.Event
	for cur.Next(ctx) {
		var ev domain.Event
		if err := cur.Decode(&ev); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, cur.Err()
}

// --- Workflows ---

func (s *Store) SaveWorkflow(ctx context.Context, w *domain.Workflow) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(CollWorkflows).ReplaceOne(ctx, bson.M{"_id": w.ID}, w, opts)
	return err
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var w domain.Workflow
	err := s.db.Collection(CollWorkflows).FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	return &w, err
}

func (s *Store) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	cur, err := s.db.Collection(CollWorkflows).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.Workflow
	for cur.Next(ctx) {
		var w domain.Workflow
		if err := cur.Decode(&w); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, cur.Err()
}

func regexQuoteMeta(s string) string {
	special := `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		for j := 0; j < len(special); j++ {
			if c == special[j] {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, c)
	}
	return string(out)
}

var _ store.Store = (*Store)(nil)
