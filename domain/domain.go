// Package domain defines the persisted entities of the orchestration engine:
// Agent, AgentVersion, Session, Run, Event and Workflow (see spec §3).
package domain

import "time"

// CreatedBy identifies the actor that created an Agent.
type CreatedBy string

// Recognized CreatedBy values.
const (
	CreatedBySystem CreatedBy = "system"
	CreatedByUser   CreatedBy = "user"
	CreatedByAgent  CreatedBy = "agent"
)

// Role is the routing role inferred for or declared on an agent.
type Role string

// Recognized Role values.
const (
	RoleSystem     Role = "system"
	RoleRouter     Role = "router"
	RoleSpecialist Role = "specialist"
	RoleUnknown    Role = ""
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

// Recognized RunStatus values.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// EventType enumerates the append-only event stream's event kinds.
type EventType string

// Recognized EventType values, in the order a successful final run emits them.
const (
	EventRunStarted        EventType = "RUN_STARTED"
	EventPromptLoaded       EventType = "PROMPT_LOADED"
	EventModelRequest       EventType = "MODEL_REQUEST"
	EventModelResponse      EventType = "MODEL_RESPONSE"
	EventSpawnAgentRequest  EventType = "SPAWN_AGENT_REQUEST"
	EventSpawnAgentCreated  EventType = "SPAWN_AGENT_CREATED"
	EventChildRunStarted    EventType = "CHILD_RUN_STARTED"
	EventChildRunFinished   EventType = "CHILD_RUN_FINISHED"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventError              EventType = "ERROR"
)

// Origin records provenance for an agent spawned by a run.
type Origin struct {
	ParentRunID      string `json:"parentRunId,omitempty" bson:"parentRunId,omitempty"`
	RootRunID        string `json:"rootRunId,omitempty" bson:"rootRunId,omitempty"`
	CreatedByAgentID string `json:"createdByAgentId,omitempty" bson:"createdByAgentId,omitempty"`
	UserMessage      string `json:"userMessage,omitempty" bson:"userMessage,omitempty"`
}

// CardSkill is one skill entry of an agent's A2A-style card.
type CardSkill struct {
	ID          string   `json:"id" bson:"id"`
	Name        string   `json:"name" bson:"name"`
	Description string   `json:"description,omitempty" bson:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" bson:"tags,omitempty"`
}

// Card is the protocol-versioned descriptor exposed via the well-known
// agent-card endpoint (spec §6).
type Card struct {
	ProtocolVersion string      `json:"protocolVersion" bson:"protocolVersion"`
	Name            string      `json:"name" bson:"name"`
	Description     string      `json:"description,omitempty" bson:"description,omitempty"`
	Skills          []CardSkill `json:"skills" bson:"skills"`
}

// AgentMetadata carries the routing-relevant fields of an Agent (spec §3).
type AgentMetadata struct {
	Role         Role     `json:"role,omitempty" bson:"role,omitempty"`
	Domains      []string `json:"domains,omitempty" bson:"domains,omitempty"`
	Capabilities []string `json:"capabilities,omitempty" bson:"capabilities,omitempty"`
	Tags         []string `json:"tags,omitempty" bson:"tags,omitempty"`
	Hidden       bool     `json:"hidden,omitempty" bson:"hidden,omitempty"`
	System       bool     `json:"system,omitempty" bson:"system,omitempty"`
	Card         *Card    `json:"card,omitempty" bson:"card,omitempty"`
	Origin       *Origin  `json:"origin,omitempty" bson:"origin,omitempty"`
}

// Agent is a stable, versioned LLM persona (spec §3).
type Agent struct {
	ID              string        `json:"id" bson:"_id"`
	Slug            string        `json:"slug" bson:"slug"`
	Name            string        `json:"name" bson:"name"`
	Description     string        `json:"description,omitempty" bson:"description,omitempty"`
	ActiveVersionID string        `json:"activeVersionId" bson:"activeVersionId"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updatedAt"`
	CreatedBy       CreatedBy     `json:"createdBy" bson:"createdBy"`
	Metadata        AgentMetadata `json:"metadata" bson:"metadata"`
}

// RoutingHints are the optional model/temperature/tag hints attached to an
// AgentVersion by the spec the model emitted.
type RoutingHints struct {
	Tags            []string `json:"tags,omitempty" bson:"tags,omitempty"`
	PreferredModel  string   `json:"preferredModel,omitempty" bson:"preferredModel,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty" bson:"temperature,omitempty"`
}

// AgentVersion is an immutable, append-only snapshot of an agent's prompt
// and configuration (spec §3).
type AgentVersion struct {
	ID            string         `json:"id" bson:"_id"`
	AgentID       string         `json:"agentId" bson:"agentId"`
	Version       int            `json:"version" bson:"version"`
	SystemPrompt  string         `json:"systemPrompt" bson:"systemPrompt"`
	Resources     []string       `json:"resources,omitempty" bson:"resources,omitempty"`
	IOSchema      map[string]any `json:"ioSchema,omitempty" bson:"ioSchema,omitempty"`
	RoutingHints  RoutingHints   `json:"routingHints" bson:"routingHints"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	CreatedBy     CreatedBy      `json:"createdBy" bson:"createdBy"`
}

// Session is a conversational grouping that owns a set of Runs (spec §3).
type Session struct {
	ID        string         `json:"id" bson:"_id"`
	Title     string         `json:"title,omitempty" bson:"title,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// RunInput is the user message plus optional injected context a run was
// started with.
type RunInput struct {
	UserMessage string         `json:"userMessage" bson:"userMessage"`
	Context     map[string]any `json:"context,omitempty" bson:"context,omitempty"`
}

// RunOutput holds the opaque result of a succeeded run.
type RunOutput struct {
	Result any `json:"result" bson:"result"`
}

// RunError holds the failure reason of a failed run, plus the last event
// seq observed before failure (spec §3).
type RunError struct {
	Message      string `json:"message" bson:"message"`
	LastEventSeq int    `json:"lastEventSeq" bson:"lastEventSeq"`
}

// Run is one execution of one agent version (spec §3).
type Run struct {
	ID             string     `json:"id" bson:"_id"`
	SessionID      string     `json:"sessionId" bson:"sessionId"`
	AgentID        string     `json:"agentId,omitempty" bson:"agentId,omitempty"`
	AgentVersionID string     `json:"agentVersionId,omitempty" bson:"agentVersionId,omitempty"`
	Status         RunStatus  `json:"status" bson:"status"`
	ParentRunID    string     `json:"parentRunId,omitempty" bson:"parentRunId,omitempty"`
	RootRunID      string     `json:"rootRunId" bson:"rootRunId"`
	Input          RunInput   `json:"input" bson:"input"`
	Output         *RunOutput `json:"output,omitempty" bson:"output,omitempty"`
	Error          *RunError  `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt      time.Time  `json:"startedAt" bson:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// Terminal reports whether the run has reached a terminal status.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}

// Event is one append-only entry in a run's event stream (spec §3).
type Event struct {
	ID      string    `json:"id" bson:"_id"`
	RunID   string    `json:"runId" bson:"runId"`
	Seq     int       `json:"seq" bson:"seq"`
	TS      time.Time `json:"ts" bson:"ts"`
	Type    EventType `json:"type" bson:"type"`
	Payload any       `json:"payload,omitempty" bson:"payload,omitempty"`
}

// WorkflowNode is one node of a saved linear DAG (spec §3).
type WorkflowNode struct {
	ID                string   `json:"id" bson:"id"`
	AgentSlug         string   `json:"agentSlug" bson:"agentSlug"`
	Label             string   `json:"label,omitempty" bson:"label,omitempty"`
	IncludeUserPrompt bool     `json:"includeUserPrompt" bson:"includeUserPrompt"`
	Parents           []string `json:"parents,omitempty" bson:"parents,omitempty"`
}

// Workflow is a saved, named linear DAG of agent invocations (spec §3).
type Workflow struct {
	ID          string         `json:"id" bson:"_id"`
	Name        string         `json:"name" bson:"name"`
	Description string         `json:"description,omitempty" bson:"description,omitempty"`
	Nodes       []WorkflowNode `json:"nodes" bson:"nodes"`
}
