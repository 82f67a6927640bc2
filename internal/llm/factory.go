package llm

import (
	"fmt"
	"strings"

	"mathviz/internal/config"
	mverrors "mathviz/internal/errors"
	"mathviz/internal/logging"
	"mathviz/internal/observability"
)

// FactoryDeps are the ambient collaborators threaded into every client.
type FactoryDeps struct {
	Logger  logging.Logger
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
}

// NewClient builds the configured provider and wraps it with retries and
// instrumentation. The mock provider is never retried.
func NewClient(cfg config.LLMConfig, deps FactoryDeps) (Client, error) {
	clientCfg := ClientConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Logger:  deps.Logger,
	}

	var (
		client Client
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		client, err = NewOpenAIClient(cfg.Model, clientCfg)
	case "openai-responses":
		client, err = NewOpenAIResponsesClient(cfg.Model, clientCfg)
	case "ollama":
		client, err = NewOllamaClient(cfg.Model, clientCfg)
	case "mock":
		return NewInstrumentedClient(NewMockClient(cfg.Model), deps.Metrics, deps.Tracer), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	retryCfg := mverrors.DefaultRetryConfig()
	if cfg.RetryAttempts >= 0 {
		retryCfg.MaxAttempts = cfg.RetryAttempts
	}
	client = NewRetryClient(client, retryCfg, nil, deps.Logger)
	return NewInstrumentedClient(client, deps.Metrics, deps.Tracer), nil
}

// NewGeneratorFromConfig builds a Generator using cfg's limits.
func NewGeneratorFromConfig(client Client, cfg config.LLMConfig, tools []Tool, logger logging.Logger) *Generator {
	return NewGenerator(client, GeneratorOptions{
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		MaxRounds:   cfg.MaxToolRounds,
		TokenBudget: cfg.ContextTokenBudget,
		Tools:       tools,
		Logger:      logger,
	})
}
