// Package circuitbreaker shields the event channel from a struggling
// backend: after repeated failures calls are rejected outright until a
// cool-down passes, instead of stacking timeouts on every publish.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of the breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrOpen is returned while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name string
	// FailureThreshold is how many consecutive failures trip the breaker.
	FailureThreshold int
	// CoolDown is how long the breaker stays open before probing again.
	CoolDown time.Duration
}

type CircuitBreaker struct {
	name      string
	threshold int
	coolDown  time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.CoolDown <= 0 {
		settings.CoolDown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:      settings.Name,
		threshold: settings.FailureThreshold,
		coolDown:  settings.CoolDown,
		state:     StateClosed,
	}
}

// Execute runs fn unless the breaker is open. The first call after the
// cool-down goes through half-open: its outcome decides whether the
// breaker closes again or re-opens.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	if time.Since(cb.lastFailure) < cb.coolDown {
		return fmt.Errorf("%s: %w", cb.name, ErrOpen)
	}
	cb.state = StateHalfOpen
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
			cb.state = StateOpen
		}
		return
	}
	cb.failures = 0
	cb.state = StateClosed
}
