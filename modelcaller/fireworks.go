package modelcaller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
)

const fireworksEndpoint = "https://api.fireworks.ai/inference/v1/chat/completions"

const maxErrorBodyPrefix = 512

// fireworksProvider calls Fireworks' OpenAI-compatible chat-completions
// endpoint directly over net/http. No SDK in the retrieved pack targets
// Fireworks, so this mirrors the request/response envelope the OpenAI
// provider uses rather than importing a client library (see DESIGN.md).
type fireworksProvider struct {
	apiKey string
	model  string
	client *http.Client
}

func newFireworksProvider(apiKey, model string) *fireworksProvider {
	return &fireworksProvider{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type fireworksRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type fireworksResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *fireworksProvider) Call(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	body, err := json.Marshal(fireworksRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("fireworks: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fireworksEndpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("fireworks: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("fireworks: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		prefix := respBody
		if len(prefix) > maxErrorBodyPrefix {
			prefix = prefix[:maxErrorBodyPrefix]
		}
		return Response{}, engineerr.NewModelError(resp.StatusCode, string(prefix))
	}

	var parsed fireworksResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("fireworks: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return Response{}, engineerr.NewModelError(0, "missing content")
	}
	return Response{Content: parsed.Choices[0].Message.Content}, nil
}
