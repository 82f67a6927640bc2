package llm

import (
	"context"
	"fmt"
	"strings"

	"mathviz/internal/logging"
	"mathviz/internal/tokenutil"
)

// MetadataPurpose tags a request with the pipeline role that issued it.
const MetadataPurpose = "purpose"

// Pipeline roles.
const (
	PurposeSolver         = "solver"
	PurposeEvaluator      = "evaluator"
	PurposeScriptWriter   = "script_writer"
	PurposeSceneGenerator = "scene_generator"
	PurposeSceneQA        = "scene_qa"
)

// Prompt is one generation request as issued by pipeline components.
type Prompt struct {
	Purpose     string
	System      string
	User        string
	Temperature float64
	// MaxTokens overrides the generator default when positive.
	MaxTokens int
	// UseTools declares the generator's tools for this request.
	UseTools bool
}

// TextGenerator is what pipeline components depend on.
type TextGenerator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	MaxTokens   int
	TopP        float64
	MaxRounds   int
	TokenBudget int
	Tools       []Tool
	CountTokens tokenutil.Counter
	Logger      logging.Logger
}

// Generator turns Prompts into completions, running the bounded tool loop
// when tools are requested.
type Generator struct {
	client Client
	opts   GeneratorOptions
	logger logging.Logger
}

var _ TextGenerator = (*Generator)(nil)

// NewGenerator wraps client.
func NewGenerator(client Client, opts GeneratorOptions) *Generator {
	return &Generator{
		client: client,
		opts:   opts,
		logger: logging.Component(opts.Logger, "generator"),
	}
}

// Model returns the underlying model name.
func (g *Generator) Model() string { return g.client.Model() }

// Generate returns the final text for prompt. An empty completion is an error.
func (g *Generator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	maxTokens := g.opts.MaxTokens
	if prompt.MaxTokens > 0 {
		maxTokens = prompt.MaxTokens
	}
	req := CompletionRequest{
		Temperature: prompt.Temperature,
		MaxTokens:   maxTokens,
		TopP:        g.opts.TopP,
		Metadata:    map[string]any{MetadataPurpose: prompt.Purpose},
	}

	conv := NewConversation(prompt.System, prompt.User, ConversationOptions{
		MaxRounds:   g.opts.MaxRounds,
		TokenBudget: g.opts.TokenBudget,
		CountTokens: g.opts.CountTokens,
	})

	var tools []Tool
	if prompt.UseTools {
		tools = g.opts.Tools
	}
	resp, err := RunToolLoop(ctx, g.client, conv, req, tools, g.logger)
	if err != nil {
		return "", fmt.Errorf("%s generation: %w", purposeLabel(prompt.Purpose), err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%s generation: empty response from %s", purposeLabel(prompt.Purpose), g.client.Model())
	}
	if resp.StopReason == "length" {
		g.logger.Warn("%s output hit the token limit (%d); content may be truncated", purposeLabel(prompt.Purpose), maxTokens)
	}
	return content, nil
}

func purposeLabel(purpose string) string {
	if purpose == "" {
		return "text"
	}
	return strings.ReplaceAll(purpose, "_", " ")
}
