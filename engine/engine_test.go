package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/modelcaller"
	"trpc.group/trpc-go/trpc-agent-go/store"
	"trpc.group/trpc-go/trpc-agent-go/store/memory"
)

func newTestEngine(t *testing.T, caller *modelcaller.Caller) (*Engine, store.Store) {
	t.Helper()
	s := memory.New()
	e := New(s, caller, "gpt-4o", RoutingPolicy{MaxDepth: 2, MaxChildren: 3}, 50, 50, "bootstrap", "Bootstrap Router")
	return e, s
}

func createSession(t *testing.T, ctx context.Context, s store.Store) string {
	t.Helper()
	sess := &domain.Session{ID: "sess-1"}
	require.NoError(t, s.CreateSession(ctx, sess))
	return sess.ID
}

func TestExecute_FinalOnly(t *testing.T) {
	ctx := context.Background()
	mock := modelcaller.NewWithProvider("mock", mockProviderFunc(func(req modelcaller.Request) (modelcaller.Response, error) {
		return modelcaller.Response{Content: `{"type":"final","result":{"mock":true,"echo":"final only: hi"}}`}, nil
	}))
	e, s := newTestEngine(t, mock)
	sessID := createSession(t, ctx, s)

	run, err := e.Start(ctx, StartOptions{SessionID: sessID, UserMessage: "final only: hi", AgentSlug: "demo-echo"})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSucceeded, run.Status)
	require.Equal(t, map[string]any{"mock": true, "echo": "final only: hi"}, run.Output.Result)

	events, err := s.ListEvents(ctx, run.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	require.Equal(t, domain.EventRunStarted, events[0].Type)
	require.Equal(t, domain.EventPromptLoaded, events[1].Type)
	require.Equal(t, domain.EventModelRequest, events[2].Type)
	require.Equal(t, domain.EventModelResponse, events[3].Type)
	require.Equal(t, domain.EventRunFinished, events[4].Type)
}

func TestExecute_PlanWithOneNewAgent(t *testing.T) {
	ctx := context.Background()
	calls := 0
	mock := modelcaller.NewWithProvider("mock", mockProviderFunc(func(req modelcaller.Request) (modelcaller.Response, error) {
		calls++
		if calls == 1 {
			return modelcaller.Response{Content: `{
				"type":"plan",
				"agentsToCreate":[{"slug":"mock-echo","name":"Mock Echo","systemPrompt":"Echo it."}],
				"runsToExecute":[{"slug":"mock-echo"}]
			}`}, nil
		}
		return modelcaller.Response{Content: `{"type":"final","result":{"echoed":true}}`}, nil
	}))
	e, s := newTestEngine(t, mock)
	sessID := createSession(t, ctx, s)

	run, err := e.Start(ctx, StartOptions{SessionID: sessID, UserMessage: "Plan a demo", AgentSlug: "bootstrap"})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSucceeded, run.Status)

	agent, err := s.GetAgentBySlug(ctx, "mock-echo")
	require.NoError(t, err)
	versions, err := s.ListAgentVersions(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, 1, versions[0].Version)

	runs, err := s.ListRunsBySession(ctx, sessID)
	require.NoError(t, err)
	var child *domain.Run
	for _, r := range runs {
		if r.ParentRunID == run.ID {
			child = r
		}
	}
	require.NotNil(t, child)

	result := run.Output.Result.(map[string]any)
	childResults := result["childResultsBySlug"].(map[string]any)
	require.Equal(t, map[string]any{"echoed": true}, childResults["mock-echo"])
	planSummary := result["planSummary"].(map[string]any)
	require.Equal(t, []string{"mock-echo"}, planSummary["createdAgents"])
}

func TestExecute_SpawnCapExceeded(t *testing.T) {
	ctx := context.Background()
	mock := modelcaller.NewWithProvider("mock", mockProviderFunc(func(req modelcaller.Request) (modelcaller.Response, error) {
		return modelcaller.Response{Content: `{"type":"plan","runsToExecute":[{"slug":"leaf"}]}`}, nil
	}))
	e, s := newTestEngine(t, mock)
	sessID := createSession(t, ctx, s)

	root := &domain.Run{ID: "root", SessionID: sessID, RootRunID: "root", Status: domain.RunStatusRunning}
	require.NoError(t, s.CreateRun(ctx, root))
	for i := 0; i < 10; i++ {
		r := &domain.Run{ID: "desc-" + string(rune('a'+i)), SessionID: sessID, RootRunID: "root", Status: domain.RunStatusSucceeded}
		require.NoError(t, s.CreateRun(ctx, r))
	}

	leaf := &domain.Agent{ID: "leaf-agent", Slug: "leaf", Name: "Leaf", ActiveVersionID: "leaf-v1"}
	require.NoError(t, s.CreateAgent(ctx, leaf))
	require.NoError(t, s.CreateAgentVersion(ctx, &domain.AgentVersion{ID: "leaf-v1", AgentID: "leaf-agent", Version: 1, SystemPrompt: "p"}))

	err := e.Execute(ctx, "root")
	require.NoError(t, err)
	got, err := s.GetRun(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusFailed, got.Status)
	require.Equal(t, "Spawn cap exceeded", got.Error.Message)
}

func TestExecute_AntiLoop(t *testing.T) {
	ctx := context.Background()
	mock := modelcaller.NewWithProvider("mock", mockProviderFunc(func(req modelcaller.Request) (modelcaller.Response, error) {
		return modelcaller.Response{Content: `{"type":"plan","runsToExecute":[{"slug":"a"}]}`}, nil
	}))
	e, s := newTestEngine(t, mock)
	sessID := createSession(t, ctx, s)

	agent := &domain.Agent{ID: "self-agent", Slug: "self", Name: "Self", ActiveVersionID: "self-v1"}
	require.NoError(t, s.CreateAgent(ctx, agent))
	require.NoError(t, s.CreateAgentVersion(ctx, &domain.AgentVersion{ID: "self-v1", AgentID: "self-agent", Version: 1, SystemPrompt: "p"}))

	run := &domain.Run{
		ID: "run-1", SessionID: sessID, RootRunID: "run-1", AgentID: "self-agent", Status: domain.RunStatusRunning,
		Input: domain.RunInput{UserMessage: "go", Context: map[string]any{"routingState": map[string]any{"visitedSlugs": []any{"a"}, "routingDepth": float64(0)}}},
	}
	require.NoError(t, s.CreateRun(ctx, run))

	err := e.Execute(ctx, "run-1")
	require.NoError(t, err)
	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusFailed, got.Status)
	require.Equal(t, "Slug already executed in this run tree: a", got.Error.Message)

	events, err := s.ListEvents(ctx, "run-1", 0)
	require.NoError(t, err)
	errorCount := 0
	for _, ev := range events {
		if ev.Type == domain.EventError {
			errorCount++
		}
	}
	require.Equal(t, 1, errorCount)
	require.Equal(t, domain.EventRunFinished, events[len(events)-1].Type)
}

// mockProviderFunc adapts a plain function to the modelcaller provider
// interface for test injection.
type mockProviderFunc func(req modelcaller.Request) (modelcaller.Response, error)

func (f mockProviderFunc) Call(ctx context.Context, req modelcaller.Request) (modelcaller.Response, error) {
	return f(req)
}
