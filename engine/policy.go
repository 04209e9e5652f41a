package engine

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
)

// RoutingPolicy bounds depth and fan-out (spec §4.4, §4.5.5 steps 2-3).
type RoutingPolicy struct {
	MaxDepth    int
	MaxChildren int
}

// TransferHook mirrors the teacher's agent.TransferController shape
// (agent/transfer_controller.go): an optional extra check consulted after
// the engine's own, non-optional role-discipline check (spec §4.5.5).
type TransferHook func(ctx context.Context, fromSlug, toSlug string) error

// validatePlan applies the spec §4.5.5 checks in order, returning the
// first violation as a PolicyError (or ValidationError for shape issues).
func (e *Engine) validatePlan(
	ctx context.Context,
	p *plan,
	selfSlug string,
	selfRole domain.Role,
	visitedSlugs []string,
	routingDepth int,
	rootRunID string,
	knownRouters map[string]struct{},
) error {
	// 1. Role discipline.
	if selfRole == domain.RoleSpecialist {
		if len(p.AgentsToCreate) > 0 {
			return engineerr.NewPolicy("Specialist agents cannot create new agents")
		}
		if len(p.RunsToExecute) > 1 {
			return engineerr.NewPolicy("Specialist agents may only delegate to a single router")
		}
		for _, c := range p.RunsToExecute {
			if _, ok := knownRouters[c.Slug]; !ok {
				return engineerr.NewPolicy("Specialist agents may only delegate to a known router: %s", c.Slug)
			}
			if e.policy.transferHook != nil {
				if err := e.policy.transferHook(ctx, selfSlug, c.Slug); err != nil {
					return engineerr.NewPolicy("transfer rejected: %s", err.Error())
				}
			}
		}
	}

	// 2. Depth limit.
	if routingDepth >= e.policy.MaxDepth && len(p.RunsToExecute) > 0 {
		return engineerr.NewPolicy("Routing depth exceeded")
	}

	// 3. Fan-out limit.
	if len(p.RunsToExecute) > e.policy.MaxChildren {
		return engineerr.NewPolicy("Fan-out limit exceeded")
	}

	// 4. Per-run uniqueness.
	seen := make(map[string]struct{}, len(p.RunsToExecute))
	for _, c := range p.RunsToExecute {
		if c.Slug == "" {
			return engineerr.NewValidation("runsToExecute entries must have a non-empty slug")
		}
		if _, dup := seen[c.Slug]; dup {
			return engineerr.NewValidation("duplicate slug in runsToExecute: %s", c.Slug)
		}
		seen[c.Slug] = struct{}{}
	}

	// 5. Anti-loop.
	visited := make(map[string]struct{}, len(visitedSlugs))
	for _, s := range visitedSlugs {
		visited[s] = struct{}{}
	}
	for _, c := range p.RunsToExecute {
		if _, already := visited[c.Slug]; already {
			return engineerr.NewPolicy("Slug already executed in this run tree: %s", c.Slug)
		}
	}

	// 6. Spawn cap.
	count, err := e.store.CountRunsByRoot(ctx, rootRunID)
	if err != nil {
		return fmt.Errorf("engine: count runs by root: %w", err)
	}
	alreadySpawned := count - 1
	if alreadySpawned+len(p.RunsToExecute) > spawnCapDescendants {
		return engineerr.NewPolicy("Spawn cap exceeded")
	}

	// 7. Agent spec validity.
	for _, spec := range p.AgentsToCreate {
		if spec.Slug == "" || spec.Name == "" || spec.SystemPrompt == "" {
			return engineerr.NewValidation("agentsToCreate entries require non-empty slug, name and systemPrompt")
		}
	}

	return nil
}

// spawnCapDescendants bounds the number of runs sharing a rootRunId beyond
// the root itself (spec §4.5.5 step 6, glossary "Spawn cap").
const spawnCapDescendants = 10
