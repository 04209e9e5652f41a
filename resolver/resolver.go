// Package resolver implements the agent resolver and deduplication
// algorithm (spec §4.4): turning a model-proposed agent spec into a
// concrete, versioned Agent — reusing an existing one whenever the spec
// content-addresses to it, and otherwise creating a new agent or a new
// version.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/routing"
	"trpc.group/trpc-go/trpc-agent-go/store"
)

// cardProtocolVersion is the fixed protocol version stamped onto every
// synthesized agent card (spec §4.4).
const cardProtocolVersion = "1.0"

// AgentSpec is the model-proposed agent description taken from a plan's
// agentsToCreate[i].
type AgentSpec struct {
	Slug         string              `json:"slug"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	SystemPrompt string              `json:"systemPrompt"`
	Resources    []string            `json:"resources,omitempty"`
	IOSchema     map[string]any      `json:"ioSchema,omitempty"`
	RoutingHints domain.RoutingHints `json:"routingHints,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

// MatchedOn describes which search step produced a match.
type MatchedOn string

const (
	MatchedOnNone        MatchedOn = ""
	MatchedOnSlug        MatchedOn = "slug"
	MatchedOnName        MatchedOn = "name"
	MatchedOnTags        MatchedOn = "tags"
	matchedOnUpdatedSuffix         = "-updated"
)

// AgentResolution is the outcome of resolving one AgentSpec.
type AgentResolution struct {
	RequestedSlug     string    `json:"requestedSlug"`
	Slug              string    `json:"slug"`
	AgentID           string    `json:"agentId"`
	AgentVersionID    string    `json:"agentVersionId"`
	Reused            bool      `json:"reused"`
	MatchedOn         MatchedOn `json:"matchedOn"`
	CreatedNewAgent   bool      `json:"createdNewAgent,omitempty"`
	CreatedNewVersion bool      `json:"createdNewVersion,omitempty"`
}

// Origin is provenance stamped onto every spawned agent (spec §4.4).
type Origin struct {
	ParentRunID      string
	RootRunID        string
	CreatedByAgentID string
	UserMessage      string
}

// Resolver resolves agent specs against the store using the slug → name →
// tags search order.
type Resolver struct {
	store store.Store
}

// New builds a Resolver over s.
func New(s store.Store) *Resolver {
	return &Resolver{store: s}
}

func effectiveTags(spec AgentSpec) []string {
	var fromMetadata []string
	if spec.Metadata != nil {
		if raw, ok := spec.Metadata["tags"]; ok {
			fromMetadata = toStringSlice(raw)
		}
	}
	return routing.MergeUnique(routing.NormalizeStrings(spec.RoutingHints.Tags), routing.NormalizeStrings(fromMetadata))
}

func toStringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// find performs the ordered slug → name → tags search (spec §4.4).
func (r *Resolver) find(ctx context.Context, spec AgentSpec, tags []string) (*domain.Agent, MatchedOn, error) {
	if spec.Slug != "" {
		a, err := r.store.GetAgentBySlug(ctx, spec.Slug)
		if err == nil {
			return a, MatchedOnSlug, nil
		}
		if err != store.ErrNotFound {
			return nil, MatchedOnNone, err
		}
	}

	if spec.Name != "" {
		a, err := r.store.FindAgentByNameCI(ctx, spec.Name)
		if err == nil {
			return a, MatchedOnName, nil
		}
		if err != store.ErrNotFound {
			return nil, MatchedOnNone, err
		}
	}

	if len(tags) > 0 {
		matches, err := r.store.FindAgentsByTags(ctx, tags)
		if err != nil {
			return nil, MatchedOnNone, err
		}
		if len(matches) > 0 {
			return matches[0], MatchedOnTags, nil
		}
	}

	return nil, MatchedOnNone, nil
}

// Resolve resolves a single agent spec, creating or reusing an agent and
// version as the spec §4.4 decision table dictates.
func (r *Resolver) Resolve(ctx context.Context, spec AgentSpec, origin Origin) (*AgentResolution, error) {
	tags := effectiveTags(spec)
	existing, matchedOn, err := r.find(ctx, spec, tags)
	if err != nil {
		return nil, fmt.Errorf("resolver: search: %w", err)
	}

	if existing == nil {
		return r.createNew(ctx, spec, tags, origin)
	}

	latest, err := r.store.LatestAgentVersion(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("resolver: load latest version: %w", err)
	}

	mergeMetadata(existing, spec, tags)
	if err := r.store.UpdateAgent(ctx, existing); err != nil {
		return nil, fmt.Errorf("resolver: merge metadata: %w", err)
	}

	if strings.TrimSpace(latest.SystemPrompt) == strings.TrimSpace(spec.SystemPrompt) {
		return &AgentResolution{
			RequestedSlug:  spec.Slug,
			Slug:           existing.Slug,
			AgentID:        existing.ID,
			AgentVersionID: latest.ID,
			Reused:         true,
			MatchedOn:      matchedOn,
		}, nil
	}

	newVersion := &domain.AgentVersion{
		ID:           uuid.NewString(),
		AgentID:      existing.ID,
		Version:      latest.Version + 1,
		SystemPrompt: spec.SystemPrompt,
		Resources:    spec.Resources,
		IOSchema:     spec.IOSchema,
		RoutingHints: spec.RoutingHints,
		CreatedAt:    time.Now(),
		CreatedBy:    domain.CreatedByAgent,
	}
	if err := r.store.CreateAgentVersion(ctx, newVersion); err != nil {
		return nil, fmt.Errorf("resolver: create new version: %w", err)
	}
	existing.ActiveVersionID = newVersion.ID
	existing.UpdatedAt = time.Now()
	if err := r.store.UpdateAgent(ctx, existing); err != nil {
		return nil, fmt.Errorf("resolver: activate new version: %w", err)
	}

	return &AgentResolution{
		RequestedSlug:     spec.Slug,
		Slug:              existing.Slug,
		AgentID:           existing.ID,
		AgentVersionID:    newVersion.ID,
		MatchedOn:         matchedOn + matchedOnUpdatedSuffix,
		CreatedNewVersion: true,
	}, nil
}

func (r *Resolver) createNew(ctx context.Context, spec AgentSpec, tags []string, origin Origin) (*AgentResolution, error) {
	role := routing.InferRoleFromTags(tags)
	domains := routing.ExtractDomainsFromTags(tags)
	if len(domains) == 0 {
		if d := routing.InferDomainFromLabel(spec.Name, spec.Slug); d != "" {
			domains = []string{d}
		}
	}

	now := time.Now()
	agentID := uuid.NewString()
	card := domain.Card{
		ProtocolVersion: cardProtocolVersion,
		Name:            spec.Name,
		Description:     spec.Description,
		Skills: []domain.CardSkill{{
			ID:          spec.Slug,
			Name:        spec.Name,
			Description: spec.Description,
			Tags:        tags,
		}},
	}

	agent := &domain.Agent{
		ID:        agentID,
		Slug:      spec.Slug,
		Name:      spec.Name,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: domain.CreatedByAgent,
		Metadata: domain.AgentMetadata{
			Role:    role,
			Domains: domains,
			Tags:    tags,
			Card:    &card,
			Origin: &domain.Origin{
				ParentRunID:      origin.ParentRunID,
				RootRunID:        origin.RootRunID,
				CreatedByAgentID: origin.CreatedByAgentID,
				UserMessage:      origin.UserMessage,
			},
		},
	}

	version := &domain.AgentVersion{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		Version:      1,
		SystemPrompt: spec.SystemPrompt,
		Resources:    spec.Resources,
		IOSchema:     spec.IOSchema,
		RoutingHints: spec.RoutingHints,
		CreatedAt:    now,
		CreatedBy:    domain.CreatedByAgent,
	}
	agent.ActiveVersionID = version.ID

	if err := r.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("resolver: create agent: %w", err)
	}
	if err := r.store.CreateAgentVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("resolver: create version: %w", err)
	}

	return &AgentResolution{
		RequestedSlug:   spec.Slug,
		Slug:            agent.Slug,
		AgentID:         agent.ID,
		AgentVersionID:  version.ID,
		MatchedOn:       MatchedOnNone,
		CreatedNewAgent: true,
	}, nil
}

// mergeMetadata folds newly observed tags/domains into an already-matched
// agent without discarding information the agent already carried.
func mergeMetadata(existing *domain.Agent, spec AgentSpec, tags []string) {
	existing.Metadata.Tags = routing.MergeUnique(existing.Metadata.Tags, tags)
	domains := routing.ExtractDomainsFromTags(tags)
	existing.Metadata.Domains = routing.MergeUnique(existing.Metadata.Domains, domains)
	if existing.Metadata.Role == domain.RoleUnknown {
		existing.Metadata.Role = routing.InferRoleFromTags(existing.Metadata.Tags)
	}
	if existing.Description == "" && spec.Description != "" {
		existing.Description = spec.Description
	}
	existing.UpdatedAt = time.Now()
}
