// Package workflow implements the linear workflow runner (spec §4.7): a
// saved, named DAG of agent invocations evaluated in persisted node order,
// with no implicit topological sort.
package workflow

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/engine"
	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
	"trpc.group/trpc-go/trpc-agent-go/store"
)

const continuationUserMessage = "Continue from previous agent output and produce the next step."

// NodeResult is one node's outcome, as returned by workflow.run (spec §6).
type NodeResult struct {
	NodeID    string `json:"nodeId"`
	AgentSlug string `json:"agentSlug"`
	RunID     string `json:"runId"`
	Status    string `json:"status"`
	Output    any    `json:"output"`
}

// Result is the full workflow.run response.
type Result struct {
	Runs        []NodeResult `json:"runs"`
	FinalOutput any          `json:"finalOutput"`
}

// Runner evaluates saved workflows against the Run Executor.
type Runner struct {
	store store.Store
	eng   *engine.Engine
}

// New builds a Runner over s and eng.
func New(s store.Store, eng *engine.Engine) *Runner {
	return &Runner{store: s, eng: eng}
}

// Run evaluates workflowID's nodes in persisted order (spec §4.7). Each
// node's declared parents must already have a recorded output, or the
// whole run aborts — per SPEC_FULL.md §9, a missing parent output is not
// skipped and not papered over with an error placeholder.
func (rn *Runner) Run(ctx context.Context, workflowID, sessionID, userMessage string) (*Result, error) {
	wf, err := rn.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]any, len(wf.Nodes))
	results := make([]NodeResult, 0, len(wf.Nodes))

	for _, node := range wf.Nodes {
		parentOutputs := make(map[string]any, len(node.Parents))
		for _, parentID := range node.Parents {
			out, ok := outputs[parentID]
			if !ok {
				return nil, engineerr.NewValidation("Parent outputs missing for node %s (parent %s)", node.ID, parentID)
			}
			parentOutputs[parentID] = out
		}

		nodeUserMessage := continuationUserMessage
		if node.IncludeUserPrompt {
			nodeUserMessage = userMessage
		}

		run, err := rn.eng.Start(ctx, engine.StartOptions{
			SessionID:   sessionID,
			UserMessage: nodeUserMessage,
			AgentSlug:   node.AgentSlug,
			Context: map[string]any{
				"explicitContext": map[string]any{
					"parentOutputs":      parentOutputs,
					"workflowUserMessage": userMessage,
					"nodeLabel":           node.Label,
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("workflow: run node %s: %w", node.ID, err)
		}

		var output any
		if run.Output != nil {
			output = run.Output.Result
		}
		outputs[node.ID] = output

		results = append(results, NodeResult{
			NodeID:    node.ID,
			AgentSlug: node.AgentSlug,
			RunID:     run.ID,
			Status:    string(run.Status),
			Output:    output,
		})

		if run.Status == domain.RunStatusFailed {
			return &Result{Runs: results, FinalOutput: output}, nil
		}
	}

	var finalOutput any
	if len(results) > 0 {
		finalOutput = results[len(results)-1].Output
	}
	return &Result{Runs: results, FinalOutput: finalOutput}, nil
}
