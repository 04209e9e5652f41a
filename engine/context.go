package engine

import (
	"context"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/routing"
)

const directoryAgentPurpose = "Sees the full agent roster and can route a request to any router or specialist."

// buildContext composes the model-call context object (spec §4.5.2). Child
// runs already carry parentPlan/previousResults/explicitContext in their
// stored Input.Context (set at spawn time, §4.5.6); those are passed
// through unchanged here.
func (e *Engine) buildContext(
	ctx context.Context,
	run *domain.Run,
	agent *domain.Agent,
	selfSummary routing.AgentSummary,
	visitedSlugs []string,
	routingDepth int,
) (map[string]any, error) {
	agents, err := e.store.ListAgents(ctx, false)
	if err != nil {
		return nil, err
	}
	values := make([]domain.Agent, 0, len(agents))
	for _, a := range agents {
		values = append(values, *a)
	}

	out := map[string]any{
		"availableAgentsSummary": routing.SummarizeAgents(values),
		"availableRouters":       routing.BuildRouterIndex(values, e.policy.RouterIndexLimit),
		"routingPolicy": map[string]any{
			"maxDepth":    e.policy.MaxDepth,
			"maxChildren": e.policy.MaxChildren,
		},
		"routingState": map[string]any{
			"visitedSlugs": visitedSlugs,
			"routingDepth": routingDepth,
		},
		"self": selfSummary,
		"a2a": map[string]any{
			"directoryAgent": map[string]any{
				"slug":    e.mainRouterSlug,
				"purpose": directoryAgentPurpose,
			},
		},
	}

	if selfSummary.Role == domain.RoleRouter {
		var domains []string
		if len(selfSummary.Domains) > 0 {
			domains = selfSummary.Domains
		}
		out["availableSpecialists"] = routing.BuildSpecialistIndex(values, e.policy.SpecialistIndexLimit, domains)
	}

	if agent.Slug == e.mainRouterSlug {
		summaries := make([]routing.AgentSummary, 0, len(values))
		for _, a := range values {
			summaries = append(summaries, routing.BuildAgentSummary(a))
		}
		out["availableAgents"] = summaries
	}

	if run.Input.Context != nil {
		for _, key := range []string{"parentPlan", "previousResults", "explicitContext"} {
			if v, ok := run.Input.Context[key]; ok {
				out[key] = v
			}
		}
	}

	return out, nil
}

// knownRouterSlugs returns the slug set of every non-hidden router agent,
// used by role-discipline validation (spec §4.5.5 step 1).
func (e *Engine) knownRouterSlugs(ctx context.Context) (map[string]struct{}, error) {
	agents, err := e.store.ListAgents(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, a := range agents {
		if routing.BuildAgentSummary(*a).Role == domain.RoleRouter {
			out[a.Slug] = struct{}{}
		}
	}
	return out, nil
}
