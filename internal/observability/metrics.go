package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"mathviz/internal/async"
)

// MetricsCollector manages the pipeline's OpenTelemetry instruments.
// A zero value is valid and records nothing.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider

	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	phaseRuns     metric.Int64Counter
	phaseDuration metric.Float64Histogram

	solveAttempts metric.Int64Counter
	sceneAttempts metric.Int64Counter

	renderJobs     metric.Int64Counter
	renderDuration metric.Float64Histogram

	syncAdjustments metric.Int64Counter

	server *http.Server
	logger *Logger
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig, logger *Logger) (*MetricsCollector, error) {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	if !config.Enabled {
		return &MetricsCollector{logger: logger}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("mathviz")

	m := &MetricsCollector{provider: provider, logger: logger}
	if err := m.createInstruments(meter); err != nil {
		return nil, err
	}

	if config.Addr != "" {
		m.StartPrometheusServer(config.Addr)
	}
	return m, nil
}

func (m *MetricsCollector) createInstruments(meter metric.Meter) error {
	var err error

	if m.llmRequests, err = meter.Int64Counter(
		"mathviz.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return fmt.Errorf("failed to create llm_requests counter: %w", err)
	}
	if m.llmTokensInput, err = meter.Int64Counter(
		"mathviz.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return fmt.Errorf("failed to create llm_tokens_input counter: %w", err)
	}
	if m.llmTokensOutput, err = meter.Int64Counter(
		"mathviz.llm.tokens.output",
		metric.WithDescription("Total output tokens from LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return fmt.Errorf("failed to create llm_tokens_output counter: %w", err)
	}
	if m.llmLatency, err = meter.Float64Histogram(
		"mathviz.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}
	if m.phaseRuns, err = meter.Int64Counter(
		"mathviz.pipeline.phase.total",
		metric.WithDescription("Pipeline phase completions by outcome"),
		metric.WithUnit("{phase}"),
	); err != nil {
		return fmt.Errorf("failed to create phase counter: %w", err)
	}
	if m.phaseDuration, err = meter.Float64Histogram(
		"mathviz.pipeline.phase.duration",
		metric.WithDescription("Pipeline phase duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create phase_duration histogram: %w", err)
	}
	if m.solveAttempts, err = meter.Int64Counter(
		"mathviz.solve.attempts.total",
		metric.WithDescription("Solver attempts by evaluator verdict"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return fmt.Errorf("failed to create solve_attempts counter: %w", err)
	}
	if m.sceneAttempts, err = meter.Int64Counter(
		"mathviz.scene.attempts.total",
		metric.WithDescription("Scene drafting attempts by QA outcome"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return fmt.Errorf("failed to create scene_attempts counter: %w", err)
	}
	if m.renderJobs, err = meter.Int64Counter(
		"mathviz.render.jobs.total",
		metric.WithDescription("Rendered scene classes by status"),
		metric.WithUnit("{job}"),
	); err != nil {
		return fmt.Errorf("failed to create render_jobs counter: %w", err)
	}
	if m.renderDuration, err = meter.Float64Histogram(
		"mathviz.render.duration",
		metric.WithDescription("Render duration per scene class in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create render_duration histogram: %w", err)
	}
	if m.syncAdjustments, err = meter.Int64Counter(
		"mathviz.sync.adjustments.total",
		metric.WithDescription("Clip duration reconciliations by method"),
		metric.WithUnit("{clip}"),
	); err != nil {
		return fmt.Errorf("failed to create sync_adjustments counter: %w", err)
	}
	return nil
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// StartPrometheusServer serves /metrics on addr in the background.
func (m *MetricsCollector) StartPrometheusServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := m.server
	async.Go(panicReporter{m.logger}, "metrics server", func() {
		m.logger.Info("prometheus metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("prometheus server error", "error", err)
		}
	})
}

// panicReporter adapts the structured logger to async's printf contract.
type panicReporter struct{ logger *Logger }

func (p panicReporter) Error(format string, args ...any) {
	p.logger.Error(fmt.Sprintf(format, args...))
}

// Shutdown stops the scrape server and flushes the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.server != nil {
		errs = append(errs, m.server.Shutdown(ctx))
	}
	if m.provider != nil {
		errs = append(errs, m.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// RecordLLMRequest records an LLM request
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model), attribute.String("status", status))
	modelAttr := metric.WithAttributes(attribute.String("model", model))

	m.llmRequests.Add(ctx, 1, attrs)
	m.llmTokensInput.Add(ctx, int64(inputTokens), modelAttr)
	m.llmTokensOutput.Add(ctx, int64(outputTokens), modelAttr)
	m.llmLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordPhase records one pipeline phase and how it ended (ok, skipped, failed).
func (m *MetricsCollector) RecordPhase(ctx context.Context, phase, outcome string, duration time.Duration) {
	if m == nil || m.phaseRuns == nil {
		return
	}
	m.phaseRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase), attribute.String("outcome", outcome)))
	m.phaseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordSolveAttempt counts a solve/evaluate round.
func (m *MetricsCollector) RecordSolveAttempt(ctx context.Context, approved bool) {
	if m == nil || m.solveAttempts == nil {
		return
	}
	m.solveAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("approved", approved)))
}

// RecordSceneAttempt counts one scene draft for the given segment.
func (m *MetricsCollector) RecordSceneAttempt(ctx context.Context, accepted bool) {
	if m == nil || m.sceneAttempts == nil {
		return
	}
	m.sceneAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", accepted)))
}

// RecordRender records one rendered scene class.
func (m *MetricsCollector) RecordRender(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.renderJobs == nil {
		return
	}
	m.renderJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.renderDuration.Record(ctx, duration.Seconds())
}

// RecordSyncAdjustment records which reconciliation path a clip took.
func (m *MetricsCollector) RecordSyncAdjustment(ctx context.Context, method string) {
	if m == nil || m.syncAdjustments == nil {
		return
	}
	m.syncAdjustments.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}
