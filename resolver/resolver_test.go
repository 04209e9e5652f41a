package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/store/memory"
)

func TestResolve_NoMatchCreatesNewAgent(t *testing.T) {
	s := memory.New()
	r := New(s)

	spec := AgentSpec{
		Slug:         "billing-specialist",
		Name:         "Billing Specialist",
		SystemPrompt: "Handle billing questions.",
		RoutingHints: domain.RoutingHints{Tags: []string{"specialist", "domain:billing"}},
	}
	res, err := r.Resolve(context.Background(), spec, Origin{ParentRunID: "run-1", RootRunID: "run-1"})
	require.NoError(t, err)
	require.True(t, res.CreatedNewAgent)
	require.Equal(t, MatchedOnNone, res.MatchedOn)

	agent, err := s.GetAgent(context.Background(), res.AgentID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleSpecialist, agent.Metadata.Role)
	require.Equal(t, []string{"billing"}, agent.Metadata.Domains)
	require.NotNil(t, agent.Metadata.Origin)
	require.Equal(t, "run-1", agent.Metadata.Origin.RootRunID)
	require.NotNil(t, agent.Metadata.Card)
}

func TestResolve_ExactSlugMatchReusesWhenPromptUnchanged(t *testing.T) {
	s := memory.New()
	r := New(s)
	ctx := context.Background()

	spec := AgentSpec{
		Slug:         "billing-specialist",
		Name:         "Billing Specialist",
		SystemPrompt: "Handle billing questions.",
	}
	first, err := r.Resolve(ctx, spec, Origin{})
	require.NoError(t, err)

	second, err := r.Resolve(ctx, spec, Origin{})
	require.NoError(t, err)
	require.True(t, second.Reused)
	require.Equal(t, MatchedOnSlug, second.MatchedOn)
	require.Equal(t, first.AgentVersionID, second.AgentVersionID)

	versions, err := s.ListAgentVersions(ctx, first.AgentID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestResolve_SlugMatchWithChangedPromptCreatesNewVersion(t *testing.T) {
	s := memory.New()
	r := New(s)
	ctx := context.Background()

	spec := AgentSpec{Slug: "billing-specialist", Name: "Billing Specialist", SystemPrompt: "v1 prompt"}
	first, err := r.Resolve(ctx, spec, Origin{})
	require.NoError(t, err)

	spec.SystemPrompt = "v2 prompt"
	second, err := r.Resolve(ctx, spec, Origin{})
	require.NoError(t, err)
	require.True(t, second.CreatedNewVersion)
	require.NotEqual(t, first.AgentVersionID, second.AgentVersionID)

	agent, err := s.GetAgent(ctx, first.AgentID)
	require.NoError(t, err)
	require.Equal(t, second.AgentVersionID, agent.ActiveVersionID)
}

func TestResolve_NameMatchFallsThroughWhenSlugDiffers(t *testing.T) {
	s := memory.New()
	r := New(s)
	ctx := context.Background()

	_, err := r.Resolve(ctx, AgentSpec{Slug: "billing-v1", Name: "Billing Helper", SystemPrompt: "p"}, Origin{})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, AgentSpec{Slug: "billing-v2", Name: "billing helper", SystemPrompt: "p"}, Origin{})
	require.NoError(t, err)
	require.Equal(t, MatchedOnName, res.MatchedOn)
	require.True(t, res.Reused)
}

func TestResolve_TagsMatchWhenSlugAndNameMiss(t *testing.T) {
	s := memory.New()
	r := New(s)
	ctx := context.Background()

	_, err := r.Resolve(ctx, AgentSpec{
		Slug: "refunds-bot", Name: "Refunds Bot", SystemPrompt: "p",
		RoutingHints: domain.RoutingHints{Tags: []string{"specialist", "domain:refunds"}},
	}, Origin{})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, AgentSpec{
		Slug: "other-slug", Name: "Other Name", SystemPrompt: "p",
		RoutingHints: domain.RoutingHints{Tags: []string{"domain:refunds"}},
	}, Origin{})
	require.NoError(t, err)
	require.Equal(t, MatchedOnTags, res.MatchedOn)
}

func TestResolve_IdempotentPlanYieldsNoNewVersions(t *testing.T) {
	s := memory.New()
	r := New(s)
	ctx := context.Background()

	spec := AgentSpec{Slug: "echo", Name: "Echo", SystemPrompt: "Echo the input."}
	for i := 0; i < 3; i++ {
		_, err := r.Resolve(ctx, spec, Origin{})
		require.NoError(t, err)
	}

	agent, err := s.GetAgentBySlug(ctx, "echo")
	require.NoError(t, err)
	versions, err := s.ListAgentVersions(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}
