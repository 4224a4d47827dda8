// breaker.go implements the per-model sliding-window circuit breaker.
package failover

import (
	"sync"
	"time"

	"github.com/gantry-dev/gantry/internal/session"
)

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

const (
	defaultFailureThreshold = 3
	defaultMonitoringPeriod = 5 * time.Minute
	defaultResetTimeout     = time.Minute
)

// CircuitBreaker tracks recent failures for one model. It opens once
// threshold failures land inside the monitoring window, and after the
// reset timeout admits exactly one probe invocation before deciding
// whether to close again.
type CircuitBreaker struct {
	mu         sync.Mutex
	modelID    string
	threshold  int
	window     time.Duration
	resetAfter time.Duration
	failures   []time.Time
	openedAt   time.Time
	probing    bool
	now        func() time.Time
}

// NewCircuitBreaker creates a breaker for modelID. Non-positive settings
// fall back to the defaults: 3 failures in 5 minutes, 1 minute reset.
func NewCircuitBreaker(modelID string, threshold int, window, resetAfter time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if window <= 0 {
		window = defaultMonitoringPeriod
	}
	if resetAfter <= 0 {
		resetAfter = defaultResetTimeout
	}
	return &CircuitBreaker{
		modelID:    modelID,
		threshold:  threshold,
		window:     window,
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

// State reports the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state()
}

// state must be called with mu held.
func (cb *CircuitBreaker) state() State {
	if cb.openedAt.IsZero() {
		return StateClosed
	}
	if cb.now().Sub(cb.openedAt) >= cb.resetAfter {
		return StateHalfOpen
	}
	return StateOpen
}

// Allow reports whether an invocation may proceed. In the half-open state
// only the first caller gets through until the probe resolves.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the breaker and clears its failure history.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = nil
	cb.openedAt = time.Time{}
	cb.probing = false
}

// RecordFailure counts a failure. A failed probe reopens the breaker for
// a fresh reset timeout; otherwise failures inside the monitoring window
// count against the threshold. Returns true when this failure opened the
// breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.probing {
		cb.probing = false
		cb.openedAt = now
		return true
	}
	if !cb.openedAt.IsZero() {
		return false
	}

	cb.failures = append(cb.failures, now)
	cb.prune(now)
	if len(cb.failures) >= cb.threshold {
		cb.openedAt = now
		return true
	}
	return false
}

// prune drops failures older than the monitoring window. Must be called
// with mu held.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.window)
	kept := cb.failures[:0]
	for _, ts := range cb.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	cb.failures = kept
}

// Snapshot exports the breaker state for checkpointing.
func (cb *CircuitBreaker) Snapshot() session.BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := session.BreakerSnapshot{
		ModelID:  cb.modelID,
		Failures: append([]time.Time(nil), cb.failures...),
	}
	if !cb.openedAt.IsZero() {
		openedAt := cb.openedAt
		snap.OpenedAt = &openedAt
	}
	return snap
}

// restore loads checkpointed state, discarding whatever the breaker held.
func (cb *CircuitBreaker) restore(snap session.BreakerSnapshot) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = append([]time.Time(nil), snap.Failures...)
	if snap.OpenedAt != nil {
		cb.openedAt = *snap.OpenedAt
	} else {
		cb.openedAt = time.Time{}
	}
	cb.probing = false
}
