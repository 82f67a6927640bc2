package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"mathviz/internal/logging"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// ollamaClient talks to a local Ollama daemon through its Go API package.
type ollamaClient struct {
	client *api.Client
	model  string
	logger logging.Logger
}

// NewOllamaClient builds a client for a local Ollama model.
func NewOllamaClient(model string, config ClientConfig) (Client, error) {
	base := strings.TrimSpace(config.BaseURL)
	if base == "" {
		base = defaultOllamaBaseURL
	}
	// api.NewClient wants the bare host, not the OpenAI-compatible /v1 path.
	base = strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url %q: %w", base, err)
	}
	httpClient := &http.Client{Timeout: config.Timeout}
	return &ollamaClient{
		client: api.NewClient(parsed, httpClient),
		model:  model,
		logger: logging.Component(config.Logger, "ollama"),
	}, nil
}

func (c *ollamaClient) Model() string { return c.model }

func (c *ollamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := msg.Role
		if role == RoleTool {
			role = RoleUser
		}
		messages = append(messages, api.Message{Role: role, Content: msg.Content})
	}

	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		options["stop"] = req.StopSequences
	}

	var last api.ChatResponse
	var content strings.Builder
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("ollama chat: empty response")
	}

	return &CompletionResponse{
		Content:    content.String(),
		StopReason: last.DoneReason,
		Usage: TokenUsage{
			PromptTokens:     last.PromptEvalCount,
			CompletionTokens: last.EvalCount,
			TotalTokens:      last.PromptEvalCount + last.EvalCount,
		},
	}, nil
}
