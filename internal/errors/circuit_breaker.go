package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mathviz/internal/logging"
)

// ErrCircuitOpen is wrapped by the permanent error returned while a
// breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitState is the breaker position.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig sets when a breaker trips and how it recovers.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive transient failures before opening
	SuccessThreshold int           // half-open successes before closing
	Timeout          time.Duration // open period before a probe is allowed
}

// DefaultCircuitBreakerConfig trips after 5 failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// CircuitBreaker short-circuits calls to a model or speech backend that
// keeps failing. Only transient errors count as failures.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	probes   int
	openedAt time.Time
}

func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger logging.Logger) *CircuitBreaker {
	return &CircuitBreaker{name: name, config: config, logger: logging.OrNop(logger), now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Guard(cb, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Guard is Execute for calls that return a value.
func Guard[T any](cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.admit(); err != nil {
		var zero T
		return zero, err
	}
	result, err := fn(ctx)
	cb.record(err != nil && IsTransient(err))
	return result, err
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	remaining := cb.config.Timeout - cb.now().Sub(cb.openedAt)
	if remaining <= 0 {
		cb.state, cb.probes = StateHalfOpen, 0
		cb.logger.Info("[%s] circuit half-open, probing backend", cb.name)
		return nil
	}
	return NewPermanentError(
		fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen),
		fmt.Sprintf("%s is failing repeatedly; retrying in %v", cb.name, remaining.Round(time.Second)),
	)
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case failed && cb.state == StateHalfOpen:
		cb.trip()
		cb.logger.Warn("[%s] circuit reopened, probe failed", cb.name)
	case failed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.trip()
			cb.logger.Warn("[%s] circuit opened after %d failures", cb.name, cb.failures)
		}
	case cb.state == StateHalfOpen:
		cb.probes++
		if cb.probes >= cb.config.SuccessThreshold {
			cb.state, cb.failures, cb.probes = StateClosed, 0, 0
			cb.logger.Info("[%s] circuit closed, backend recovered", cb.name)
		}
	default:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.probes = 0
}
