package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-go/resolver"
)

// errModelResponseMissingType is the exact failure message spec §4.5.3
// requires when a parsed model response lacks a recognized top-level type.
var errModelResponseMissingType = errors.New("Model response missing type plan/final")

// childSpec is one entry of a plan's runsToExecute.
type childSpec struct {
	Slug        string         `json:"slug"`
	UserMessage string         `json:"userMessage,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// plan is the normalized shape of a parsed model response (spec §4.5.3,
// §4.5.5). Type is always "final" or "plan" by the time a plan value
// exists; the two branches' fields are simply left zero on the other
// branch.
type plan struct {
	Type           string
	Result         any
	AgentsToCreate []resolver.AgentSpec
	RunsToExecute  []childSpec
}

// parseModelResponse strictly parses content as JSON, requires a
// recognized top-level type, and for plan responses normalizes the legacy
// agents/runs key aliases (spec §4.5.3, §9 "Legacy key aliases").
func parseModelResponse(content string) (*plan, map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, nil, fmt.Errorf("model response is not valid JSON: %w", err)
	}

	typ, _ := raw["type"].(string)
	if typ != "final" && typ != "plan" {
		return nil, raw, errModelResponseMissingType
	}

	p := &plan{Type: typ}
	if typ == "final" {
		p.Result = raw["result"]
		return p, raw, nil
	}

	agentsRaw, err := arrayField(raw, "agentsToCreate", "agents")
	if err != nil {
		return nil, raw, err
	}
	runsRaw, err := arrayField(raw, "runsToExecute", "runs")
	if err != nil {
		return nil, raw, err
	}

	p.AgentsToCreate, err = decodeAgentSpecs(agentsRaw)
	if err != nil {
		return nil, raw, err
	}
	p.RunsToExecute, err = decodeChildSpecs(runsRaw)
	if err != nil {
		return nil, raw, err
	}
	return p, raw, nil
}

// arrayField reads the first present of the given keys and requires it to
// be a JSON array (or absent), returning an empty slice when absent.
func arrayField(raw map[string]any, primary, legacy string) ([]any, error) {
	v, ok := raw[primary]
	if !ok {
		v, ok = raw[legacy]
	}
	if !ok || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array", primary)
	}
	return arr, nil
}

func decodeAgentSpecs(items []any) ([]resolver.AgentSpec, error) {
	out := make([]resolver.AgentSpec, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode agentsToCreate entry: %w", err)
		}
		var spec resolver.AgentSpec
		if err := json.Unmarshal(b, &spec); err != nil {
			return nil, fmt.Errorf("decode agentsToCreate entry: %w", err)
		}
		out = append(out, spec)
	}
	return out, nil
}

func decodeChildSpecs(items []any) ([]childSpec, error) {
	out := make([]childSpec, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode runsToExecute entry: %w", err)
		}
		var c childSpec
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("decode runsToExecute entry: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}
