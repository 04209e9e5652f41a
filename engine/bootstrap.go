package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
)

// bootstrapSystemPrompt is the seed prompt for the lazily-created main
// router. Its content is out of scope as a product artifact (spec §1);
// this text only satisfies the structural requirement that every agent
// version carry a non-empty systemPrompt.
const bootstrapSystemPrompt = "You are the main router for this engine. Route each request to the specialist best suited to handle it, or answer directly with a final result when no delegation is needed."

// ensureBootstrapAgent loads the main router agent (MAIN_ROUTER_SLUG),
// lazily creating it on first use (spec §4.5.1).
func (e *Engine) ensureBootstrapAgent(ctx context.Context) (*domain.Agent, *domain.AgentVersion, error) {
	agent, err := e.store.GetAgentBySlug(ctx, e.mainRouterSlug)
	if err == nil {
		version, vErr := e.store.GetAgentVersion(ctx, agent.ActiveVersionID)
		if vErr != nil {
			return nil, nil, fmt.Errorf("engine: load bootstrap agent version: %w", vErr)
		}
		return agent, version, nil
	}

	now := time.Now()
	agentID := uuid.NewString()
	versionID := uuid.NewString()

	version := &domain.AgentVersion{
		ID:           versionID,
		AgentID:      agentID,
		Version:      1,
		SystemPrompt: bootstrapSystemPrompt,
		CreatedAt:    now,
		CreatedBy:    domain.CreatedBySystem,
	}

	newAgent := &domain.Agent{
		ID:              agentID,
		Slug:            e.mainRouterSlug,
		Name:            e.mainRouterName,
		ActiveVersionID: versionID,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       domain.CreatedBySystem,
		Metadata: domain.AgentMetadata{
			Role:   domain.RoleRouter,
			Tags:   []string{"router", "directory"},
			System: true,
			Card: &domain.Card{
				ProtocolVersion: cardProtocolVersion,
				Name:            e.mainRouterName,
				Description:     "The bootstrap directory agent.",
				Skills: []domain.CardSkill{{
					ID:   e.mainRouterSlug,
					Name: e.mainRouterName,
					Tags: []string{"router", "directory"},
				}},
			},
		},
	}

	if err := e.store.CreateAgent(ctx, newAgent); err != nil {
		return nil, nil, fmt.Errorf("engine: create bootstrap agent: %w", err)
	}
	if err := e.store.CreateAgentVersion(ctx, version); err != nil {
		return nil, nil, fmt.Errorf("engine: create bootstrap agent version: %w", err)
	}
	return newAgent, version, nil
}

// cardProtocolVersion mirrors resolver.cardProtocolVersion; kept as its
// own constant so this file has no dependency on the resolver package's
// unexported details.
const cardProtocolVersion = "1.0"
