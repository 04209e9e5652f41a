// Package modelcaller implements the model caller (spec §4.2): a single
// async operation that turns a chat-style request into assistant text.
// Provider selection is deterministic and process-local, read once at
// construction time so later environment changes never flip providers
// mid-run (spec §9 "Global state").
package modelcaller

import (
	"context"
	"os"

	"trpc.group/trpc-go/trpc-agent-go/internal/xlog"
)

// Caller is the model caller. Construct one with New and reuse it for the
// lifetime of the process; it is safe for concurrent use.
type Caller struct {
	provider     provider
	providerName string
}

// New reads FIREWORKS_API_KEY / OPENAI_API_KEY once and binds the Caller to
// the corresponding provider, falling back to the in-process mock when
// neither is set.
func New() *Caller {
	if key := os.Getenv("FIREWORKS_API_KEY"); key != "" {
		model := os.Getenv("FIREWORKS_MODEL")
		if model == "" {
			model = "accounts/fireworks/models/llama-v3p1-70b-instruct"
		}
		xlog.Info("modelcaller: using fireworks provider")
		return &Caller{provider: newFireworksProvider(key, model), providerName: "fireworks"}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		xlog.Info("modelcaller: using openai provider")
		return &Caller{provider: newOpenAIProvider(key), providerName: "openai"}
	}
	xlog.Info("modelcaller: using mock provider (no API key configured)")
	return &Caller{provider: newMockProvider(), providerName: "mock"}
}

// NewWithProvider builds a Caller around an explicit provider, primarily
// for tests that need to inject a fake.
func NewWithProvider(name string, p provider) *Caller {
	return &Caller{provider: p, providerName: name}
}

// ProviderName reports which provider this Caller is bound to ("fireworks",
// "openai" or "mock").
func (c *Caller) ProviderName() string { return c.providerName }

// Call invokes the bound provider. No retries are performed (spec §4.2).
func (c *Caller) Call(ctx context.Context, req Request) (Response, error) {
	return c.provider.Call(ctx, req)
}
