package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"mathviz/internal/avsync"
	"mathviz/internal/capability"
	"mathviz/internal/config"
	"mathviz/internal/ffmpeg"
	"mathviz/internal/llm"
	"mathviz/internal/logging"
	"mathviz/internal/observability"
	"mathviz/internal/output"
	"mathviz/internal/pipeline"
	"mathviz/internal/prompts"
	"mathviz/internal/rag"
	"mathviz/internal/render"
	"mathviz/internal/scene"
	"mathviz/internal/search"
	"mathviz/internal/tts"
)

const shutdownTimeout = 5 * time.Second

// Container holds everything built once per process.
type Container struct {
	Config       config.Config
	Orchestrator *pipeline.Orchestrator
	Printer      *output.Printer
	Logger       logging.Logger
	Metrics      *observability.MetricsCollector
	Tracer       *observability.TracerProvider
}

func buildContainer(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) (*Container, error) {
	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: stderr,
	})
	logger := logging.FromObservability(obsLogger, "mathviz")

	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics, obsLogger)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	tracing := cfg.Observability.Tracing
	if tracing.ServiceVersion == "" || tracing.ServiceVersion == "dev" {
		tracing.ServiceVersion = appVersion()
	}
	tracer, err := observability.NewTracerProvider(tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM, llm.FactoryDeps{Logger: logger, Metrics: metrics, Tracer: tracer})
	if err != nil {
		return nil, err
	}
	logger.Debug("llm provider=%s model=%s key=%s", cfg.LLM.Provider, cfg.LLM.Model, observability.SanitizeAPIKey(cfg.LLM.APIKey))
	var tools []llm.Tool
	if cfg.Search.TavilyAPIKey != "" {
		tools = append(tools, search.NewTavily(cfg.Search.TavilyAPIKey, cfg.Search.MaxResults))
	}
	generator := llm.NewGeneratorFromConfig(client, cfg.LLM, tools, logger)

	loader, err := prompts.NewLoader(cfg.PromptDir)
	if err != nil {
		return nil, err
	}

	executor := ffmpeg.Detect(cfg.FFmpeg, logger)
	var durations render.Durationer
	if e, ok := executor.Get(); ok {
		durations = e
	}
	renderer := render.Detect(cfg.Render, durations, metrics, logger)
	retriever := rag.Detect(ctx, cfg.RAG, cfg.LLM, logger)

	printer := output.New(stdout)
	orchestrator, err := pipeline.New(pipeline.Deps{
		Config:    cfg,
		Generator: generator,
		Prompts:   loader,
		UseTools:  len(tools) > 0,
		Speech:    tts.Detect(cfg.TTS, logger),
		Renderer:  capability.Map(renderer, func(r *render.Renderer) pipeline.Renderer { return r }),
		Media:     capability.Map(executor, func(e *ffmpeg.Executor) avsync.Media { return e }),
		Retriever: capability.Map(retriever, func(r *rag.Retriever) scene.ContextRetriever { return r }),
		Durations: durations,
		Checker:   scene.NewSyntaxChecker(cfg.Scene.PythonBin),
		Printer:   printer,
		Metrics:   metrics,
		Tracer:    tracer,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.LLM.Provider == "mock" {
		logger.Warn("no API key configured; using the offline mock model")
	}
	return &Container{
		Config:       cfg,
		Orchestrator: orchestrator,
		Printer:      printer,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       tracer,
	}, nil
}

// Close flushes telemetry.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := errors.Join(c.Metrics.Shutdown(ctx), c.Tracer.Shutdown(ctx))
	if err != nil {
		c.Logger.Warn("telemetry shutdown: %v", err)
	}
	return err
}
