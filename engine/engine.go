// Package engine implements the Run Executor (spec §4.5): the recursive
// plan/final interpreter that is the core of the orchestration engine. One
// Engine is built per process and its Execute method is called once per
// run, recursing into child runs sequentially and depth-first.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/eventlog"
	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
	"trpc.group/trpc-go/trpc-agent-go/internal/xlog"
	"trpc.group/trpc-go/trpc-agent-go/internal/xtrace"
	"trpc.group/trpc-go/trpc-agent-go/modelcaller"
	"trpc.group/trpc-go/trpc-agent-go/resolver"
	"trpc.group/trpc-go/trpc-agent-go/routing"
	"trpc.group/trpc-go/trpc-agent-go/store"
)

// enginePolicy is the Engine's resolved routing policy plus the optional
// transfer hook (spec §4.5.5's agent.TransferController-shaped extension).
type enginePolicy struct {
	RoutingPolicy
	RouterIndexLimit     int
	SpecialistIndexLimit int
	transferHook         TransferHook
}

// Engine is the Run Executor. Build one with New and reuse it for the
// process lifetime; it holds no per-run state.
type Engine struct {
	store        store.Store
	caller       *modelcaller.Caller
	resolver     *resolver.Resolver
	events       *eventlog.Emitter
	policy       enginePolicy
	mainRouterSlug string
	mainRouterName string
	modelName    string
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithTransferHook installs an optional extra transfer policy consulted
// after the engine's own built-in role-discipline check (spec §4.5.5).
func WithTransferHook(h TransferHook) Option {
	return func(e *Engine) { e.policy.transferHook = h }
}

// New builds an Engine. mainRouterSlug/mainRouterName name the bootstrap
// "directory" agent (spec §4.5.1, §9 open question on resolveAgent
// fallthrough).
func New(
	s store.Store,
	caller *modelcaller.Caller,
	modelName string,
	policy RoutingPolicy,
	routerIndexLimit, specialistIndexLimit int,
	mainRouterSlug, mainRouterName string,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:          s,
		caller:         caller,
		resolver:       resolver.New(s),
		events:         eventlog.New(s),
		modelName:      modelName,
		mainRouterSlug: mainRouterSlug,
		mainRouterName: mainRouterName,
		policy: enginePolicy{
			RoutingPolicy:        policy,
			RouterIndexLimit:     routerIndexLimit,
			SpecialistIndexLimit: specialistIndexLimit,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartOptions describes a new root or child run request.
type StartOptions struct {
	SessionID   string
	UserMessage string
	AgentSlug   string
	AgentID     string
	ParentRunID string
	Context     map[string]any
}

// Start creates a new run document and executes it to completion,
// returning the final run (spec §4.6 "run.start executes to completion
// before responding").
func (e *Engine) Start(ctx context.Context, opts StartOptions) (*domain.Run, error) {
	agentID, agentVersionID, err := e.resolveStartAgent(ctx, opts.AgentSlug, opts.AgentID)
	if err != nil {
		return nil, err
	}

	rootRunID := opts.ParentRunID
	if rootRunID != "" {
		parent, err := e.store.GetRun(ctx, opts.ParentRunID)
		if err != nil {
			return nil, fmt.Errorf("engine: load parent run: %w", err)
		}
		rootRunID = parent.RootRunID
		if rootRunID == "" {
			rootRunID = parent.ID
		}
	}

	run := &domain.Run{
		ID:             uuid.NewString(),
		SessionID:      opts.SessionID,
		AgentID:        agentID,
		AgentVersionID: agentVersionID,
		Status:         domain.RunStatusRunning,
		ParentRunID:    opts.ParentRunID,
		Input:          domain.RunInput{UserMessage: opts.UserMessage, Context: opts.Context},
		StartedAt:      time.Now(),
	}
	if rootRunID == "" {
		run.RootRunID = run.ID
	} else {
		run.RootRunID = rootRunID
	}

	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("engine: create run: %w", err)
	}

	if err := e.Execute(ctx, run.ID); err != nil {
		xlog.Warnf("engine: run %s finished with error: %v", run.ID, err)
	}

	final, err := e.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("engine: reload run: %w", err)
	}
	return final, nil
}

// resolveStartAgent implements the resolveAgent fallthrough decided in
// SPEC_FULL.md §9: agentId first, then agentSlug, then the bootstrap agent.
func (e *Engine) resolveStartAgent(ctx context.Context, slug, agentID string) (string, string, error) {
	if agentID != "" {
		a, err := e.store.GetAgent(ctx, agentID)
		if err == nil {
			return a.ID, a.ActiveVersionID, nil
		}
		if err != store.ErrNotFound {
			return "", "", fmt.Errorf("engine: load agent by id: %w", err)
		}
	}
	if slug != "" {
		a, err := e.store.GetAgentBySlug(ctx, slug)
		if err == nil {
			return a.ID, a.ActiveVersionID, nil
		}
		if err != store.ErrNotFound {
			return "", "", fmt.Errorf("engine: load agent by slug: %w", err)
		}
	}
	a, v, err := e.ensureBootstrapAgent(ctx)
	if err != nil {
		return "", "", err
	}
	return a.ID, v.ID, nil
}

// Execute runs the state machine for one run end to end (spec §4.5):
// CREATED → LOADING → PROMPTED → MODEL_AWAIT → PARSED →
// [FINAL | PLAN_VALIDATED → SPAWNING → CHILDREN_RUNNING → MERGED] → TERMINAL.
//
// Any failure in the stages below — including a panic — is trapped here
// and converted into a failed run with an ERROR event, never propagated to
// the caller as an uncaught error (spec §4.5.8).
func (e *Engine) Execute(ctx context.Context, runID string) (err error) {
	ctx, span := xtrace.StartRun(ctx, runID, "")
	defer func() {
		if r := recover(); r != nil {
			err = e.fail(ctx, runID, fmt.Errorf("engine: panic: %v", r))
		}
		xtrace.End(span, err)
	}()

	if stageErr := e.execute(ctx, runID); stageErr != nil {
		return e.fail(ctx, runID, stageErr)
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, runID string) error {
	run, agent, version, err := e.loadAndAnnounce(ctx, runID)
	if err != nil {
		return err
	}

	selfSummary := routing.BuildAgentSummary(*agent)
	routingState := routing.ReadRoutingState(run.Input.Context)
	visitedSlugs := routing.MergeUnique(routingState.VisitedSlugs, []string{agent.Slug})

	buildCtx, err := e.buildContext(ctx, run, agent, selfSummary, visitedSlugs, routingState.RoutingDepth)
	if err != nil {
		return err
	}

	systemPrompt := version.SystemPrompt + "\n" + a2aInstruction
	userMessage := run.Input.UserMessage
	composedUser := userMessage + "\n\nContext:\n" + prettyJSON(buildCtx)

	promptHash := hashPrompt(systemPrompt, userMessage)
	model := e.modelName
	if version.RoutingHints.PreferredModel != "" {
		model = version.RoutingHints.PreferredModel
	}
	if _, err := e.events.Emit(ctx, run.ID, domain.EventModelRequest, map[string]any{
		"model":      model,
		"promptHash": promptHash,
	}); err != nil {
		return err
	}

	temperature := 0.2
	if version.RoutingHints.Temperature != nil {
		temperature = *version.RoutingHints.Temperature
	}
	modelCtx, modelSpan := xtrace.StartModelCall(ctx, model)
	resp, err := e.caller.Call(modelCtx, modelcaller.Request{
		Model: model,
		Messages: []modelcaller.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: composedUser},
		},
		Temperature: temperature,
	})
	xtrace.End(modelSpan, err)
	if err != nil {
		return err
	}

	parsed, rawParsed, err := parseModelResponse(resp.Content)
	if err != nil {
		return engineerr.NewValidation("%s", err.Error())
	}
	if _, err := e.events.Emit(ctx, run.ID, domain.EventModelResponse, rawParsed); err != nil {
		return err
	}

	if parsed.Type == "final" {
		return e.finish(ctx, run, parsed.Result)
	}

	return e.runPlan(ctx, run, agent, selfSummary, parsed, visitedSlugs, routingState.RoutingDepth)
}

// loadAndAnnounce is spec §4.5.1: load the run, resolve its agent version,
// and emit RUN_STARTED / PROMPT_LOADED.
func (e *Engine) loadAndAnnounce(ctx context.Context, runID string) (*domain.Run, *domain.Agent, *domain.AgentVersion, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, nil, engineerr.NewNotFound("Run", runID)
	}

	if _, err := e.events.Emit(ctx, run.ID, domain.EventRunStarted, nil); err != nil {
		return nil, nil, nil, err
	}

	var agent *domain.Agent
	if run.AgentID != "" {
		agent, err = e.store.GetAgent(ctx, run.AgentID)
		if err != nil {
			return nil, nil, nil, engineerr.NewNotFound("Agent", run.AgentID)
		}
	} else {
		agent, _, err = e.ensureBootstrapAgent(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		run.AgentID = agent.ID
	}

	versionID := run.AgentVersionID
	if versionID == "" {
		versionID = agent.ActiveVersionID
	}
	version, err := e.store.GetAgentVersion(ctx, versionID)
	if err != nil {
		return nil, nil, nil, engineerr.NewNotFound("AgentVersion", versionID)
	}
	run.AgentVersionID = version.ID

	if _, err := e.events.Emit(ctx, run.ID, domain.EventPromptLoaded, map[string]any{
		"agentVersionId": version.ID,
		"agentId":        agent.ID,
		"slug":           agent.Slug,
	}); err != nil {
		return nil, nil, nil, err
	}

	return run, agent, version, nil
}

func hashPrompt(systemPrompt, userMessage string) string {
	sum := sha256.Sum256([]byte(systemPrompt + userMessage))
	return hex.EncodeToString(sum[:])[:12]
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// finish is spec §4.5.4: the final branch.
func (e *Engine) finish(ctx context.Context, run *domain.Run, result any) error {
	now := time.Now()
	run.Output = &domain.RunOutput{Result: result}
	run.Status = domain.RunStatusSucceeded
	run.EndedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("engine: persist final run: %w", err)
	}
	_, err := e.events.Emit(ctx, run.ID, domain.EventRunFinished, map[string]any{"status": "succeeded"})
	return err
}

// fail is spec §4.5.8: the run-boundary error trap.
func (e *Engine) fail(ctx context.Context, runID string, cause error) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		xlog.Errorf("engine: run %s failed (%v) but could not be reloaded: %v", runID, cause, err)
		return cause
	}

	maxSeq, _ := e.store.MaxEventSeq(ctx, runID)
	now := time.Now()
	run.Status = domain.RunStatusFailed
	run.Error = &domain.RunError{Message: cause.Error(), LastEventSeq: maxSeq}
	run.EndedAt = &now
	if updateErr := e.store.UpdateRun(ctx, run); updateErr != nil {
		xlog.Errorf("engine: failed to persist failed run %s: %v", runID, updateErr)
	}

	if _, emitErr := e.events.Emit(ctx, runID, domain.EventError, map[string]any{"message": cause.Error()}); emitErr != nil {
		xlog.Errorf("engine: failed to emit ERROR event for run %s: %v", runID, emitErr)
	}
	if _, emitErr := e.events.Emit(ctx, runID, domain.EventRunFinished, map[string]any{"status": "failed"}); emitErr != nil {
		xlog.Errorf("engine: failed to emit RUN_FINISHED event for run %s: %v", runID, emitErr)
	}

	return cause
}
