// Package routing holds the pure, dependency-free value functions the Run
// Executor and Agent Resolver use to reason about roles, domains and
// context size (spec §4.3). Nothing here touches a store, a clock or the
// network, mirroring the teacher's own side-effect-free helper packages
// (agent/context_cloner.go, event/tags.go) that take plain values in and
// return plain values out.
package routing

import (
	"sort"
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-agent-go/domain"
)

const (
	defaultTopTagsLimit  = 12
	summaryStringLimit   = 200
	summaryObjectKeyCap  = 20
)

// NormalizeStrings trims every item and drops the empty ones, preserving
// order.
func NormalizeStrings(v []string) []string {
	out := make([]string, 0, len(v))
	for _, s := range v {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MergeUnique returns the stable-order deduplicated union of a and b, a's
// items first.
func MergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), want) {
			return true
		}
	}
	return false
}

// InferRoleFromTags infers a role from a tag set. Router beats specialist
// when both are present.
func InferRoleFromTags(tags []string) domain.Role {
	if containsTag(tags, "router") || containsTag(tags, "domain-router") {
		return domain.RoleRouter
	}
	if containsTag(tags, "specialist") {
		return domain.RoleSpecialist
	}
	return domain.RoleUnknown
}

// ExtractDomainsFromTags pulls the normalized suffix of every "domain:"
// tag.
func ExtractDomainsFromTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		trimmed := strings.TrimSpace(t)
		lower := strings.ToLower(trimmed)
		const prefix = "domain:"
		if strings.HasPrefix(lower, prefix) {
			suffix := strings.TrimSpace(trimmed[len(prefix):])
			if suffix != "" {
				out = append(out, strings.ToLower(suffix))
			}
		}
	}
	return out
}

var labelSlugSuffixes = []string{"_router", "-router", "_specialist", "-specialist"}
var labelNameSuffixes = []string{" router", " specialist"}

// InferDomainFromLabel derives a fallback domain name by stripping the
// conventional role suffix off a slug or display name.
func InferDomainFromLabel(name, slug string) string {
	s := strings.TrimSpace(slug)
	for _, suf := range labelSlugSuffixes {
		if strings.HasSuffix(strings.ToLower(s), suf) {
			s = s[:len(s)-len(suf)]
			return strings.ToLower(strings.TrimSpace(s))
		}
	}
	n := strings.TrimSpace(name)
	lowerN := strings.ToLower(n)
	for _, suf := range labelNameSuffixes {
		if strings.HasSuffix(lowerN, suf) {
			n = n[:len(n)-len(suf)]
			return strings.ToLower(strings.TrimSpace(n))
		}
	}
	return strings.ToLower(s)
}

// AgentSummary is the projection used throughout context-building and
// indexes.
type AgentSummary struct {
	Slug         string       `json:"slug"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Tags         []string     `json:"tags"`
	Domains      []string     `json:"domains"`
	Capabilities []string     `json:"capabilities"`
	Role         domain.Role  `json:"role"`
	System       bool         `json:"system"`
	Hidden       bool         `json:"hidden"`
}

// BuildAgentSummary combines an agent's own metadata with the inferences
// above; explicit metadata always wins, inference only fills gaps.
func BuildAgentSummary(a domain.Agent) AgentSummary {
	tags := NormalizeStrings(a.Metadata.Tags)

	role := a.Metadata.Role
	if role == "" || role == domain.RoleUnknown {
		role = InferRoleFromTags(tags)
	}

	domains := NormalizeStrings(a.Metadata.Domains)
	if len(domains) == 0 {
		domains = ExtractDomainsFromTags(tags)
	}
	if len(domains) == 0 {
		if d := InferDomainFromLabel(a.Name, a.Slug); d != "" {
			domains = []string{d}
		}
	}

	return AgentSummary{
		Slug:         a.Slug,
		Name:         a.Name,
		Description:  a.Description,
		Tags:         tags,
		Domains:      domains,
		Capabilities: NormalizeStrings(a.Metadata.Capabilities),
		Role:         role,
		System:       a.Metadata.System,
		Hidden:       a.Metadata.Hidden,
	}
}

// IndexEntry is the projected shape used in router/specialist indexes.
type IndexEntry struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Domains     []string `json:"domains"`
	Tags        []string `json:"tags"`
}

func toIndexEntry(s AgentSummary) IndexEntry {
	return IndexEntry{
		Slug:        s.Slug,
		Name:        s.Name,
		Description: s.Description,
		Domains:     s.Domains,
		Tags:        s.Tags,
	}
}

// BuildRouterIndex returns up to limit non-hidden router summaries,
// projected down to IndexEntry.
func BuildRouterIndex(agents []domain.Agent, limit int) []IndexEntry {
	out := make([]IndexEntry, 0, limit)
	for _, a := range agents {
		summary := BuildAgentSummary(a)
		if summary.Hidden || summary.Role != domain.RoleRouter {
			continue
		}
		out = append(out, toIndexEntry(summary))
		if len(out) >= limit {
			break
		}
	}
	return out
}

func domainsIntersect(agentDomains, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(want))
	for _, d := range want {
		set[strings.ToLower(d)] = struct{}{}
	}
	for _, d := range agentDomains {
		if _, ok := set[strings.ToLower(d)]; ok {
			return true
		}
	}
	return false
}

// BuildSpecialistIndex returns up to limit non-hidden specialist summaries,
// intersected with domains when domains is non-empty.
func BuildSpecialistIndex(agents []domain.Agent, limit int, domains []string) []IndexEntry {
	out := make([]IndexEntry, 0, limit)
	for _, a := range agents {
		summary := BuildAgentSummary(a)
		if summary.Hidden || summary.Role != domain.RoleSpecialist {
			continue
		}
		if !domainsIntersect(summary.Domains, domains) {
			continue
		}
		out = append(out, toIndexEntry(summary))
		if len(out) >= limit {
			break
		}
	}
	return out
}

// AgentsSummary is the aggregate shape reported by SummarizeAgents.
type AgentsSummary struct {
	Total    int            `json:"total"`
	ByDomain map[string]int `json:"byDomain"`
	ByRole   map[string]int `json:"byRole"`
	TopTags  []TagCount     `json:"topTags"`
}

// TagCount pairs a tag with its occurrence count.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// SummarizeAgents aggregates counts by domain, by role and the 12 most
// frequent tags.
func SummarizeAgents(agents []domain.Agent) AgentsSummary {
	byDomain := map[string]int{}
	byRole := map[string]int{}
	tagCounts := map[string]int{}
	var tagOrder []string

	for _, a := range agents {
		summary := BuildAgentSummary(a)
		for _, d := range summary.Domains {
			byDomain[d]++
		}
		byRole[string(summary.Role)]++
		for _, t := range summary.Tags {
			if _, ok := tagCounts[t]; !ok {
				tagOrder = append(tagOrder, t)
			}
			tagCounts[t]++
		}
	}

	sort.SliceStable(tagOrder, func(i, j int) bool {
		return tagCounts[tagOrder[i]] > tagCounts[tagOrder[j]]
	})
	limit := defaultTopTagsLimit
	if len(tagOrder) < limit {
		limit = len(tagOrder)
	}
	topTags := make([]TagCount, 0, limit)
	for _, t := range tagOrder[:limit] {
		topTags = append(topTags, TagCount{Tag: t, Count: tagCounts[t]})
	}

	return AgentsSummary{
		Total:    len(agents),
		ByDomain: byDomain,
		ByRole:   byRole,
		TopTags:  topTags,
	}
}

// RoutingState carries the anti-loop and depth-limit bookkeeping threaded
// through child context.
type RoutingState struct {
	VisitedSlugs []string `json:"visitedSlugs"`
	RoutingDepth int      `json:"routingDepth"`
}

// ReadRoutingState extracts a RoutingState from an opaque context map,
// clamping a missing or negative depth to 0. The fields live nested under
// context["routingState"] (the shape the engine writes at spawn time and
// the shape callers seed via run.start's context param); a flat top-level
// visitedSlugs/routingDepth is also accepted for callers that pass those
// keys directly.
func ReadRoutingState(context map[string]any) RoutingState {
	state := RoutingState{}
	if context == nil {
		return state
	}
	src := context
	if nested, ok := context["routingState"].(map[string]any); ok {
		src = nested
	}
	if raw, ok := src["visitedSlugs"]; ok {
		if list, ok := raw.([]string); ok {
			state.VisitedSlugs = NormalizeStrings(list)
		} else if list, ok := raw.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					state.VisitedSlugs = append(state.VisitedSlugs, s)
				}
			}
			state.VisitedSlugs = NormalizeStrings(state.VisitedSlugs)
		}
	}
	if raw, ok := src["routingDepth"]; ok {
		depth := toInt(raw)
		if depth < 0 {
			depth = 0
		}
		state.RoutingDepth = depth
	}
	return state
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// SummarizeResult bounds an arbitrary result value for inclusion in a
// child's context: long strings are truncated, arrays collapse to a length
// marker, and objects collapse to their first 20 keys.
func SummarizeResult(value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > summaryStringLimit {
			return v[:summaryStringLimit] + "..."
		}
		return v
	case []any:
		return map[string]any{"type": "array", "length": len(v)}
	case map[string]any:
		if isSummaryShape(v) {
			return v
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		truncated := len(keys) > summaryObjectKeyCap
		if truncated {
			keys = keys[:summaryObjectKeyCap]
		}
		return map[string]any{"type": "object", "keys": keys, "truncated": truncated}
	default:
		return v
	}
}

// isSummaryShape reports whether v is already the exact output shape
// SummarizeResult produces for an array or an object, so re-summarizing it
// is a no-op (summarizeResult(summarizeResult(x)) == summarizeResult(x)).
func isSummaryShape(v map[string]any) bool {
	switch v["type"] {
	case "array":
		_, hasLength := v["length"]
		return hasLength && len(v) == 2
	case "object":
		_, hasKeys := v["keys"]
		_, hasTruncated := v["truncated"]
		return hasKeys && hasTruncated && len(v) == 3
	default:
		return false
	}
}
