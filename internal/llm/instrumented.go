package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mathviz/internal/observability"
)

// instrumentedClient records a span and request metrics around each call.
type instrumentedClient struct {
	underlying Client
	metrics    *observability.MetricsCollector
	tracer     *observability.TracerProvider
}

// NewInstrumentedClient decorates client with tracing and metrics. Either
// collaborator may be nil.
func NewInstrumentedClient(client Client, metrics *observability.MetricsCollector, tracer *observability.TracerProvider) Client {
	return &instrumentedClient{underlying: client, metrics: metrics, tracer: tracer}
}

func (c *instrumentedClient) Model() string { return c.underlying.Model() }

func (c *instrumentedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	attrs := []attribute.KeyValue{attribute.String(observability.AttrModel, c.underlying.Model())}
	if purpose, ok := req.Metadata[MetadataPurpose].(string); ok {
		attrs = append(attrs, attribute.String("mathviz.llm.purpose", purpose))
	}
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanLLMGenerate, attrs...)

	start := time.Now()
	resp, err := c.underlying.Complete(ctx, req)
	latency := time.Since(start)

	status := "success"
	var usage TokenUsage
	if err != nil {
		status = "error"
	} else if resp != nil {
		usage = resp.Usage
		span.SetAttributes(
			attribute.Int("mathviz.llm.prompt_tokens", usage.PromptTokens),
			attribute.Int("mathviz.llm.completion_tokens", usage.CompletionTokens),
		)
	}
	c.metrics.RecordLLMRequest(ctx, c.underlying.Model(), status, latency, usage.PromptTokens, usage.CompletionTokens)
	observability.EndSpan(span, err)
	return resp, err
}
