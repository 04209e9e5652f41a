package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/resolver"
	"trpc.group/trpc-go/trpc-agent-go/routing"
)

// runPlan is the plan branch (spec §4.5.5-§4.5.7): validate, resolve and
// create any new agents, execute the requested children sequentially, then
// merge their results into this run's output.
func (e *Engine) runPlan(
	ctx context.Context,
	run *domain.Run,
	selfAgent *domain.Agent,
	selfSummary routing.AgentSummary,
	p *plan,
	visitedSlugs []string,
	routingDepth int,
) error {
	knownRouters, err := e.knownRouterSlugs(ctx)
	if err != nil {
		return err
	}

	if err := e.validatePlan(ctx, p, selfAgent.Slug, selfSummary.Role, visitedSlugs, routingDepth, run.RootRunID, knownRouters); err != nil {
		return err
	}

	agentSlugs := make([]string, 0, len(p.AgentsToCreate))
	for _, spec := range p.AgentsToCreate {
		agentSlugs = append(agentSlugs, spec.Slug)
	}
	runSlugs := make([]string, 0, len(p.RunsToExecute))
	for _, c := range p.RunsToExecute {
		runSlugs = append(runSlugs, c.Slug)
	}
	if _, err := e.events.Emit(ctx, run.ID, domain.EventSpawnAgentRequest, map[string]any{
		"agentsToCreate": agentSlugs,
		"runsToExecute":  runSlugs,
	}); err != nil {
		return err
	}

	resolutions := make(map[string]*resolver.AgentResolution, len(p.AgentsToCreate))
	origin := resolver.Origin{
		ParentRunID:      run.ID,
		RootRunID:        run.RootRunID,
		CreatedByAgentID: selfAgent.ID,
		UserMessage:      run.Input.UserMessage,
	}
	for _, spec := range p.AgentsToCreate {
		res, err := e.resolver.Resolve(ctx, spec, origin)
		if err != nil {
			return fmt.Errorf("engine: resolve agent %s: %w", spec.Slug, err)
		}
		resolutions[spec.Slug] = res
		if _, err := e.events.Emit(ctx, run.ID, domain.EventSpawnAgentCreated, res); err != nil {
			return err
		}
	}

	childOutputs := make(map[string]any, len(p.RunsToExecute))
	executedSlugs := make([]string, 0, len(p.RunsToExecute))

	for _, child := range p.RunsToExecute {
		result, err := e.runChild(ctx, run, p, child, resolutions, visitedSlugs, runSlugs, childOutputs, routingDepth)
		if err != nil {
			return err
		}
		childOutputs[child.Slug] = result
		executedSlugs = append(executedSlugs, child.Slug)
	}

	createdAgentSlugs := make([]string, 0, len(resolutions))
	for _, spec := range p.AgentsToCreate {
		if res := resolutions[spec.Slug]; res != nil {
			createdAgentSlugs = append(createdAgentSlugs, res.Slug)
		}
	}

	merged := map[string]any{
		"childResultsBySlug": childOutputs,
		"planSummary": map[string]any{
			"createdAgents":  createdAgentSlugs,
			"executedAgents": executedSlugs,
		},
	}
	return e.finish(ctx, run, merged)
}

// runChild implements spec §4.5.6 steps 1-6 for a single child.
func (e *Engine) runChild(
	ctx context.Context,
	parent *domain.Run,
	p *plan,
	child childSpec,
	resolutions map[string]*resolver.AgentResolution,
	parentVisitedSlugs []string,
	siblingSlugs []string,
	previousResults map[string]any,
	parentRoutingDepth int,
) (any, error) {
	childVisited := routing.MergeUnique(routing.MergeUnique(parentVisitedSlugs, siblingSlugs), []string{child.Slug})

	summarizedPrevious := make(map[string]any, len(previousResults))
	for slug, result := range previousResults {
		summarizedPrevious[slug] = routing.SummarizeResult(result)
	}

	childContext := map[string]any{
		"parentPlan":      p,
		"previousResults": summarizedPrevious,
		"explicitContext": child.Context,
	}

	agentID, agentVersionID, err := e.resolveChildAgent(ctx, child.Slug, resolutions)
	if err != nil {
		return nil, err
	}

	userMessage := child.UserMessage
	if userMessage == "" {
		userMessage = parent.Input.UserMessage
	}

	childRun := &domain.Run{
		ID:             uuid.NewString(),
		SessionID:      parent.SessionID,
		AgentID:        agentID,
		AgentVersionID: agentVersionID,
		Status:         domain.RunStatusRunning,
		ParentRunID:    parent.ID,
		RootRunID:      parent.RootRunID,
		Input: domain.RunInput{
			UserMessage: userMessage,
			Context:     withRoutingState(childContext, childVisited, parentRoutingDepth+1),
		},
		StartedAt: time.Now(),
	}
	if childRun.RootRunID == "" {
		childRun.RootRunID = parent.ID
	}

	if err := e.store.CreateRun(ctx, childRun); err != nil {
		return nil, fmt.Errorf("engine: create child run: %w", err)
	}

	if _, err := e.events.Emit(ctx, parent.ID, domain.EventChildRunStarted, map[string]any{
		"childRunId": childRun.ID,
		"slug":       child.Slug,
	}); err != nil {
		return nil, err
	}

	var result any
	if execErr := e.Execute(ctx, childRun.ID); execErr != nil {
		result = map[string]any{"error": execErr.Error()}
	} else {
		finished, err := e.store.GetRun(ctx, childRun.ID)
		if err != nil {
			return nil, fmt.Errorf("engine: reload child run: %w", err)
		}
		if finished.Output != nil {
			result = finished.Output.Result
		}
	}

	finished, err := e.store.GetRun(ctx, childRun.ID)
	if err != nil {
		return nil, fmt.Errorf("engine: reload child run status: %w", err)
	}
	if _, err := e.events.Emit(ctx, parent.ID, domain.EventChildRunFinished, map[string]any{
		"childRunId": childRun.ID,
		"status":     finished.Status,
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func withRoutingState(ctx map[string]any, visitedSlugs []string, routingDepth int) map[string]any {
	ctx["routingState"] = map[string]any{
		"visitedSlugs": visitedSlugs,
		"routingDepth": routingDepth,
	}
	return ctx
}

// resolveChildAgent implements spec §4.5.6 step 3: prefer this plan's own
// resolution, then an existing agent by slug, then the bootstrap agent.
func (e *Engine) resolveChildAgent(ctx context.Context, slug string, resolutions map[string]*resolver.AgentResolution) (string, string, error) {
	if res, ok := resolutions[slug]; ok {
		return res.AgentID, res.AgentVersionID, nil
	}
	return e.resolveStartAgent(ctx, slug, "")
}
