// Package httpclient builds the HTTP clients used for speech synthesis and
// web search backends.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mverrors "mathviz/internal/errors"
	"mathviz/internal/logging"
)

// New returns a client with its own transport and the given timeout.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
}

// NewWithCircuitBreaker builds a client whose transport stops calling a
// backend that keeps failing.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, name string) *http.Client {
	client := New(timeout)
	client.Transport = WrapTransport(client.Transport, mverrors.NewCircuitBreaker(name, mverrors.DefaultCircuitBreakerConfig(), logger))
	return client
}

type breakerTransport struct {
	base    http.RoundTripper
	breaker *mverrors.CircuitBreaker
}

// WrapTransport guards base with breaker. Transport errors, 5xx and 429
// responses count as failures; the response itself is still returned.
func WrapTransport(base http.RoundTripper, breaker *mverrors.CircuitBreaker) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &breakerTransport{base: base, breaker: breaker}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	var (
		resp   *http.Response
		rtErr  error
		called bool
	)
	err := t.breaker.Execute(req.Context(), func(context.Context) error {
		called = true
		resp, rtErr = t.base.RoundTrip(req)
		switch {
		case rtErr != nil && errors.Is(rtErr, context.Canceled):
			return nil
		case rtErr != nil:
			return mverrors.NewTransientError(rtErr, "backend unreachable")
		case isBreakerFailureStatus(resp.StatusCode):
			return mverrors.NewTransientError(fmt.Errorf("http status %d", resp.StatusCode), "backend error")
		}
		return nil
	})
	if !called {
		return nil, err
	}
	return resp, rtErr
}

func isBreakerFailureStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}
