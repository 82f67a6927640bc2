package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"mathviz/internal/logging"
)

// responsesClient targets the OpenAI Responses API. It is text-only: tool
// declarations are ignored, so Conversation falls through to a single round.
type responsesClient struct {
	client *openai.Client
	model  string
	logger logging.Logger
}

// NewOpenAIResponsesClient builds a Responses API client for model.
func NewOpenAIResponsesClient(model string, config ClientConfig) (Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("openai responses: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(config.BaseURL, "/")+"/"))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	client := openai.NewClient(opts...)
	return &responsesClient{
		client: &client,
		model:  model,
		logger: logging.Component(config.Logger, "openai-responses"),
	}, nil
}

func (c *responsesClient) Model() string { return c.model }

func (c *responsesClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	instructions, input := splitResponsesInput(req.Messages)
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	params.Temperature = openai.Float(req.Temperature)
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses: %w", err)
	}
	return &CompletionResponse{
		Content:    resp.OutputText(),
		StopReason: string(resp.Status),
		Usage: TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// splitResponsesInput lifts system messages into instructions and flattens
// the remaining turns into easy-input messages. Tool results are replayed as
// user text since this provider does not declare tools.
func splitResponsesInput(messages []Message) (string, []responses.ResponseInputItemUnionParam) {
	var system []string
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			if msg.Content == "" {
				continue
			}
			items = append(items, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
		case RoleTool:
			items = append(items, responses.ResponseInputItemParamOfMessage("Tool result:\n"+msg.Content, responses.EasyInputMessageRoleUser))
		default:
			items = append(items, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		}
	}
	return strings.Join(system, "\n\n"), items
}
