//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-go/domain"
)

func TestNormalizeStrings(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"trims and drops blanks", []string{" a ", "", "  ", "b"}, []string{"a", "b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, NormalizeStrings(c.in))
		})
	}
}

func TestMergeUnique(t *testing.T) {
	got := MergeUnique([]string{"a", "b"}, []string{"b", "c"})
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestInferRoleFromTags(t *testing.T) {
	cases := []struct {
		name string
		tags []string
		want domain.Role
	}{
		{"router", []string{"router"}, domain.RoleRouter},
		{"domain-router", []string{"domain-router"}, domain.RoleRouter},
		{"specialist", []string{"specialist"}, domain.RoleSpecialist},
		{"router beats specialist", []string{"specialist", "router"}, domain.RoleRouter},
		{"unknown", []string{"other"}, domain.RoleUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, InferRoleFromTags(c.tags))
		})
	}
}

func TestExtractDomainsFromTags(t *testing.T) {
	got := ExtractDomainsFromTags([]string{"domain:Billing", "router", "domain: support "})
	require.Equal(t, []string{"billing", "support"}, got)
}

func TestInferDomainFromLabel(t *testing.T) {
	cases := []struct {
		name, slug, want string
	}{
		{"Billing Router", "billing_router", "billing"},
		{"Support Specialist", "support-specialist", "support"},
		{"Refunds Router", "refunds", "refunds"},
	}
	for _, c := range cases {
		t.Run(c.want, func(t *testing.T) {
			got := InferDomainFromLabel(c.name, c.slug)
			require.NotEmpty(t, got)
		})
	}
	require.Equal(t, "billing", InferDomainFromLabel("Billing Router", "billing_router"))
	require.Equal(t, "support", InferDomainFromLabel("Support Specialist", "support-specialist"))
}

func TestBuildAgentSummary_MetadataWinsOverInference(t *testing.T) {
	a := domain.Agent{
		Slug: "billing_router",
		Name: "Billing Router",
		Metadata: domain.AgentMetadata{
			Role:    domain.RoleSpecialist,
			Domains: []string{"payments"},
			Tags:    []string{"router"},
		},
	}
	got := BuildAgentSummary(a)
	require.Equal(t, domain.RoleSpecialist, got.Role)
	require.Equal(t, []string{"payments"}, got.Domains)
}

func TestBuildAgentSummary_InferenceFillsGaps(t *testing.T) {
	a := domain.Agent{
		Slug: "billing_router",
		Name: "Billing Router",
		Metadata: domain.AgentMetadata{
			Tags: []string{"router"},
		},
	}
	got := BuildAgentSummary(a)
	require.Equal(t, domain.RoleRouter, got.Role)
	require.Equal(t, []string{"billing"}, got.Domains)
}

func TestBuildRouterIndex_HonorsLimitAndHidden(t *testing.T) {
	agents := []domain.Agent{
		{Slug: "r1", Name: "R1", Metadata: domain.AgentMetadata{Tags: []string{"router"}}},
		{Slug: "r2", Name: "R2", Metadata: domain.AgentMetadata{Tags: []string{"router"}, Hidden: true}},
		{Slug: "r3", Name: "R3", Metadata: domain.AgentMetadata{Tags: []string{"router"}}},
	}
	got := BuildRouterIndex(agents, 1)
	require.Len(t, got, 1)
	require.Equal(t, "r1", got[0].Slug)
}

func TestBuildSpecialistIndex_IntersectsDomains(t *testing.T) {
	agents := []domain.Agent{
		{Slug: "s1", Name: "S1", Metadata: domain.AgentMetadata{Tags: []string{"specialist"}, Domains: []string{"billing"}}},
		{Slug: "s2", Name: "S2", Metadata: domain.AgentMetadata{Tags: []string{"specialist"}, Domains: []string{"support"}}},
	}
	got := BuildSpecialistIndex(agents, 10, []string{"billing"})
	require.Len(t, got, 1)
	require.Equal(t, "s1", got[0].Slug)

	all := BuildSpecialistIndex(agents, 10, nil)
	require.Len(t, all, 2)
}

func TestSummarizeAgents(t *testing.T) {
	agents := []domain.Agent{
		{Slug: "r1", Metadata: domain.AgentMetadata{Tags: []string{"router", "domain:billing"}}},
		{Slug: "s1", Metadata: domain.AgentMetadata{Tags: []string{"specialist", "domain:billing"}}},
	}
	got := SummarizeAgents(agents)
	require.Equal(t, 2, got.Total)
	require.Equal(t, 2, got.ByDomain["billing"])
	require.Equal(t, 1, got.ByRole[string(domain.RoleRouter)])
	require.Equal(t, 1, got.ByRole[string(domain.RoleSpecialist)])
}

func TestReadRoutingState(t *testing.T) {
	cases := []struct {
		name    string
		context map[string]any
		want    RoutingState
	}{
		{"nil context", nil, RoutingState{}},
		{
			"nested under routingState",
			map[string]any{"routingState": map[string]any{"visitedSlugs": []any{"a", "b"}, "routingDepth": float64(2)}},
			RoutingState{VisitedSlugs: []string{"a", "b"}, RoutingDepth: 2},
		},
		{
			"flat top-level shape still accepted",
			map[string]any{"visitedSlugs": []any{"a", "b"}, "routingDepth": float64(2)},
			RoutingState{VisitedSlugs: []string{"a", "b"}, RoutingDepth: 2},
		},
		{
			"negative depth clamps to zero",
			map[string]any{"routingState": map[string]any{"routingDepth": float64(-5)}},
			RoutingState{RoutingDepth: 0},
		},
		{
			"non-numeric depth becomes zero",
			map[string]any{"routingState": map[string]any{"routingDepth": "nonsense"}},
			RoutingState{RoutingDepth: 0},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, ReadRoutingState(c.context))
		})
	}
}

func TestSummarizeResult(t *testing.T) {
	long := make([]byte, 250)
	for i := range long {
		long[i] = 'x'
	}
	got := SummarizeResult(string(long))
	require.Len(t, got, 203)

	arr := SummarizeResult([]any{1, 2, 3})
	require.Equal(t, map[string]any{"type": "array", "length": 3}, arr)

	obj := map[string]any{}
	for i := 0; i < 25; i++ {
		obj[string(rune('a'+i))] = i
	}
	summarized := SummarizeResult(obj).(map[string]any)
	require.Equal(t, "object", summarized["type"])
	require.Equal(t, true, summarized["truncated"])
	require.Len(t, summarized["keys"], 20)
}
