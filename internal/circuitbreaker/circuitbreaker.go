// Package circuitbreaker guards the vendor API client: after repeated
// failures calls fail fast instead of piling onto a struggling upstream,
// then a trickle of probes decides when to resume.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker position.
type State int

const (
	StateClosed   State = iota // requests flow normally
	StateOpen                  // requests fail fast
	StateHalfOpen              // limited probes test recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker is rejecting requests.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes the breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count that closes it again.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenMaxRequests caps in-flight probes while half-open.
	HalfOpenMaxRequests int
}

// DefaultConfig returns thresholds suited to a paid per-request vendor API.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker tracks consecutive outcomes and gates execution.
type CircuitBreaker struct {
	name   string
	config *Config
	logger *zap.Logger

	mu               sync.RWMutex
	state            State
	failureStreak    int
	successStreak    int
	halfOpenInFlight int
	lastFailure      time.Time
	rejected         int64
}

// New creates a breaker. A nil config gets DefaultConfig.
func New(name string, config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
// Returns ErrCircuitOpen or ErrTooManyRequests without calling fn when
// the request is rejected.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.observe(err)
	return err
}

// State returns the current breaker position.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// IsOpen reports whether requests are currently being rejected outright.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Rejected returns how many requests the breaker has refused.
func (cb *CircuitBreaker) Rejected() int64 {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.rejected
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.config.OpenTimeout {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenInFlight = 1
		cb.logger.Info("circuit breaker probing",
			zap.String("name", cb.name),
		)
		return nil

	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxRequests {
			cb.rejected++
			return ErrTooManyRequests
		}
		cb.halfOpenInFlight++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.successStreak++
		cb.failureStreak = 0
		if cb.state == StateHalfOpen && cb.successStreak >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
			cb.logger.Info("circuit breaker closed", zap.String("name", cb.name))
		}
		return
	}

	cb.failureStreak++
	cb.successStreak = 0
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failureStreak >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
			cb.logger.Warn("circuit breaker opened",
				zap.String("name", cb.name),
				zap.Int("failure_streak", cb.config.FailureThreshold),
				zap.Error(err),
			)
		}
	case StateHalfOpen:
		// One failed probe sends the breaker straight back to open.
		cb.transition(StateOpen)
		cb.logger.Warn("circuit breaker reopened",
			zap.String("name", cb.name),
			zap.Error(err),
		)
	}
}

// transition resets streaks; callers hold the lock.
func (cb *CircuitBreaker) transition(next State) {
	cb.state = next
	cb.failureStreak = 0
	cb.successStreak = 0
	cb.halfOpenInFlight = 0
}
