package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	mverrors "mathviz/internal/errors"
	"mathviz/internal/logging"
)

// retryClient wraps a Client with retry logic and a circuit breaker.
type retryClient struct {
	underlying     Client
	retryConfig    mverrors.RetryConfig
	circuitBreaker *mverrors.CircuitBreaker
	logger         logging.Logger
}

var _ Client = (*retryClient)(nil)

// NewRetryClient retries transient failures of client and trips the breaker
// when the backend keeps failing.
func NewRetryClient(client Client, retryConfig mverrors.RetryConfig, circuitBreaker *mverrors.CircuitBreaker, logger logging.Logger) Client {
	logger = logging.Component(logger, "llm-retry")
	if circuitBreaker == nil {
		circuitBreaker = mverrors.NewCircuitBreaker("llm-"+client.Model(), mverrors.DefaultCircuitBreakerConfig(), logger)
	}
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logger,
	}
}

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	resp, err := mverrors.RetryWithResult(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		return mverrors.Guard(c.circuitBreaker, ctx, func(ctx context.Context) (*CompletionResponse, error) {
			response, err := c.underlying.Complete(ctx, req)
			if err != nil {
				return nil, classifyLLMError(err)
			}
			return response, nil
		})
	}, c.logger)

	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", duration, err)
		return nil, fmt.Errorf("llm %s: %w", c.underlying.Model(), err)
	}
	if duration > 5*time.Second {
		c.logger.Debug("LLM request succeeded after %v", duration)
	}
	return resp, nil
}

func (c *retryClient) Model() string { return c.underlying.Model() }

// classifyLLMError tags transport failures so Retry knows which to repeat.
func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	if mverrors.IsTransient(err) || mverrors.IsPermanent(err) {
		return err
	}

	lowerErr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerErr, "429") || strings.Contains(lowerErr, "rate limit"):
		return mverrors.NewTransientError(err, "API rate limit reached. Retrying with exponential backoff.")
	case strings.Contains(lowerErr, "500") || strings.Contains(lowerErr, "internal server error"):
		return mverrors.NewTransientError(err, "Server error (500). Retrying request.")
	case strings.Contains(lowerErr, "502") || strings.Contains(lowerErr, "bad gateway"):
		return mverrors.NewTransientError(err, "Bad gateway (502). Retrying request.")
	case strings.Contains(lowerErr, "503") || strings.Contains(lowerErr, "service unavailable"):
		return mverrors.NewTransientError(err, "Service unavailable (503). Retrying request.")
	case strings.Contains(lowerErr, "504") || strings.Contains(lowerErr, "gateway timeout"):
		return mverrors.NewTransientError(err, "Gateway timeout (504). Retrying request.")
	case strings.Contains(lowerErr, "connection refused") || strings.Contains(lowerErr, "connection reset"):
		return mverrors.NewTransientError(err, "Cannot reach the model server. Retrying request.")
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return mverrors.NewTransientError(err, "Request timed out. Retrying with backoff.")
	case strings.Contains(lowerErr, "401") || strings.Contains(lowerErr, "unauthorized") || strings.Contains(lowerErr, "invalid api key"):
		return mverrors.NewPermanentError(err, "Authentication failed. Check the configured API key.")
	case strings.Contains(lowerErr, "400") || strings.Contains(lowerErr, "404"):
		return mverrors.NewPermanentError(err, "The model rejected the request.")
	}
	return mverrors.NewPermanentError(err, "LLM request failed.")
}
