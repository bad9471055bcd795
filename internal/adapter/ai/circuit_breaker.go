package ai

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/observability"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets every call through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown has elapsed.
	CircuitOpen
	// CircuitHalfOpen lets a single probe through.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards the enrichment endpoint. It opens after failureThreshold
// consecutive failures and admits one probe once cooldown has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time

	state           CircuitState
	failureCount    int
	openedAt        time.Time
	probeInFlight   bool
	totalRequests   int
	totalFailures   int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall back to
// 3 failures and a 30 second cooldown.
func NewCircuitBreaker(name string, failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
		state:            CircuitClosed,
	}
	observability.RecordCircuitBreakerState(name, int(CircuitClosed))
	return cb
}

// Allow reports whether a call may proceed. An open breaker whose cooldown has passed
// moves to half-open and admits exactly one caller until that probe is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.setState(CircuitHalfOpen)
		cb.probeInFlight = true
		return true
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the breaker and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.failureCount = 0
	cb.probeInFlight = false
	if cb.state != CircuitClosed {
		slog.Info("circuit breaker closed after successful probe", slog.String("breaker", cb.name))
		cb.setState(CircuitClosed)
	}
}

// RecordFailure counts a failure. A failed probe reopens the breaker immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.totalFailures++
	cb.failureCount++
	cb.lastFailureTime = cb.now()
	cb.probeInFlight = false

	if cb.state == CircuitHalfOpen || cb.failureCount >= cb.failureThreshold {
		if cb.state != CircuitOpen {
			slog.Warn("circuit breaker opened",
				slog.String("breaker", cb.name),
				slog.Int("failure_count", cb.failureCount),
				slog.Int("threshold", cb.failureThreshold))
		}
		cb.openedAt = cb.now()
		cb.setState(CircuitOpen)
	}
}

// Release returns an unused probe slot, for calls abandoned by their caller before the
// endpoint answered.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
}

// State returns the current circuit state without transitioning it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns counters for diagnostics.
func (cb *CircuitBreaker) Stats() map[string]any {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]any{
		"name":           cb.name,
		"state":          cb.state.String(),
		"failure_count":  cb.failureCount,
		"total_requests": cb.totalRequests,
		"total_failures": cb.totalFailures,
		"last_failure":   cb.lastFailureTime,
	}
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	observability.RecordCircuitBreakerState(cb.name, int(s))
}
