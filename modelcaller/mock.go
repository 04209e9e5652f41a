package modelcaller

import (
	"context"
	"encoding/json"
	"strings"
)

// mockProvider produces a canned plan by default, or a canned final when
// the user content carries the "final only" marker (spec §4.2, §8
// scenario 1).
type mockProvider struct{}

func newMockProvider() *mockProvider { return &mockProvider{} }

// contextMarker is the separator the engine appends after the original
// user message when it composes a run's prompt (engine.execute's
// composedUser); splitting on it recovers the caller's original message
// instead of echoing the whole composed context blob back.
const contextMarker = "\n\nContext:\n"

func (m *mockProvider) Call(ctx context.Context, req Request) (Response, error) {
	userContent := originalUserMessage(lastUserContent(req.Messages))
	if strings.Contains(strings.ToLower(userContent), "final only") {
		return m.finalResponse(userContent)
	}
	return m.planResponse()
}

func originalUserMessage(composed string) string {
	if idx := strings.Index(composed, contextMarker); idx >= 0 {
		return composed[:idx]
	}
	return composed
}

func (m *mockProvider) finalResponse(userContent string) (Response, error) {
	body := map[string]any{
		"type": "final",
		"result": map[string]any{
			"mock": true,
			"echo": userContent,
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: string(b)}, nil
}

func (m *mockProvider) planResponse() (Response, error) {
	body := map[string]any{
		"type": "plan",
		"agentsToCreate": []map[string]any{
			{
				"slug":         "mock-echo",
				"name":         "Mock Echo",
				"description":  "Echoes its input back; exercises the agent resolver in offline/mock mode.",
				"systemPrompt": "You are a mock echo agent. Always answer with a final JSON result echoing the user's message.",
				"metadata": map[string]any{
					"tags": []string{"specialist", "domain:demo"},
				},
			},
		},
		"runsToExecute": []map[string]any{
			{"slug": "mock-echo"},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: string(b)}, nil
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
