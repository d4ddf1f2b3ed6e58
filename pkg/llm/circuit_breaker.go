package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the admission state of a CircuitBreaker.
type BreakerState string

const (
	// BreakerClosed admits every oracle call.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects oracle calls until the cool-down has elapsed.
	BreakerOpen BreakerState = "open"
	// BreakerTrial admits exactly one call to decide whether to close again.
	BreakerTrial BreakerState = "trial"
)

// CircuitBreakerConfig configures a CircuitBreaker. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive oracle failures that opens the breaker.
	Threshold int
	// ResetAfter is the cool-down before an open breaker admits a trial call.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns the breaker settings used when none are configured.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// BreakerSnapshot is a point-in-time view of a CircuitBreaker.
type BreakerSnapshot struct {
	State    BreakerState
	Failures int
}

// CircuitBreaker stops a run of questions from hammering an oracle that keeps
// failing. Calls abandoned by their caller do not count against the oracle.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = defaults.ResetAfter
	}
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed, now: time.Now}
}

// Allow returns nil when an oracle call may proceed, or an ErrorTypeCircuit
// error when the breaker is rejecting calls.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		waited := b.now().Sub(b.openedAt)
		if waited >= b.cfg.ResetAfter {
			b.state = BreakerTrial
			return nil
		}
		return NewError(ErrorTypeCircuit,
			fmt.Sprintf("oracle unavailable after %d consecutive failures, retry in %s",
				b.failures, (b.cfg.ResetAfter - waited).Round(time.Second)),
			false, nil)
	default:
		return NewError(ErrorTypeCircuit, "oracle is being re-checked, retry shortly", false, nil)
	}
}

// Record feeds the outcome of an admitted call back into the breaker.
func (b *CircuitBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.failures = 0
		b.state = BreakerClosed
	case errors.Is(err, context.Canceled):
		// Says nothing about the oracle; a cancelled trial hands the slot back.
		if b.state == BreakerTrial {
			b.state = BreakerOpen
		}
	default:
		b.failures++
		if b.state == BreakerTrial || b.failures >= b.cfg.Threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	}
}

// Snapshot returns the current state and consecutive failure count.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{State: b.state, Failures: b.failures}
}

// BreakerClient is a Client that consults a CircuitBreaker around every call.
type BreakerClient struct {
	next    Client
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerClient wraps next with breaker.
func NewBreakerClient(next Client, breaker *CircuitBreaker, logger *zap.Logger) *BreakerClient {
	return &BreakerClient{
		next:    next,
		breaker: breaker,
		logger:  logger.Named("llm.breaker"),
	}
}

// Complete implements Client.
func (c *BreakerClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	if err := c.breaker.Allow(); err != nil {
		snap := c.breaker.Snapshot()
		c.logger.Warn("Oracle call rejected",
			zap.String("breaker_state", string(snap.State)),
			zap.Int("consecutive_failures", snap.Failures),
			zap.String("model", c.next.GetModel()))
		return "", err
	}

	out, err := c.next.Complete(ctx, messages, opts)
	before := c.breaker.Snapshot().State
	c.breaker.Record(err)
	if after := c.breaker.Snapshot().State; after != before {
		c.logger.Info("Oracle breaker changed state",
			zap.String("from", string(before)),
			zap.String("to", string(after)),
			zap.String("model", c.next.GetModel()))
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// GetModel implements Client.
func (c *BreakerClient) GetModel() string {
	return c.next.GetModel()
}
