package modelcaller

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-agent-go/internal/engineerr"
)

// openaiProvider calls the OpenAI chat-completions endpoint with
// response_format=json_object (spec §4.2). Grounded on the teacher's
// core/model/openai Model.GenerateContent: built the same way, but
// collapsed to a single non-streaming call since this engine never
// streams token deltas (spec §1 Non-goals).
type openaiProvider struct {
	client openai.Client
}

func newOpenAIProvider(apiKey string) *openaiProvider {
	return &openaiProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (p *openaiProvider) Call(ctx context.Context, req Request) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    p.convertMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Response{}, engineerr.NewModelError(apiErr.StatusCode, apiErr.Message)
		}
		return Response{}, engineerr.NewModelError(0, err.Error())
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, engineerr.NewModelError(0, "missing content")
	}
	return Response{Content: resp.Choices[0].Message.Content}, nil
}

func (p *openaiProvider) convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
