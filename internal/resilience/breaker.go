// Package resilience provides the circuit breaker state machine and the
// health probe cache that protect calls into remote backends.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"holograph/internal/logging"
	"holograph/internal/metrics"
)

// ErrBreakerOpen is returned by Call when the breaker rejects without
// invoking the protected function.
var ErrBreakerOpen = errors.New("circuit breaker open")

// State is a breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BreakerConfig holds the transition thresholds.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// DefaultBreakerConfig returns the standard thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         60 * time.Second,
	}
}

// Breaker is a named three-state circuit breaker. All operations are
// serialized by the per-breaker mutex.
type Breaker struct {
	name    string
	cfg     BreakerConfig
	metrics *metrics.Registry

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	probeInFlight        bool

	now func() time.Time // injectable for tests
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(name string, cfg BreakerConfig, reg *metrics.Registry) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Breaker{
		name:    name,
		cfg:     cfg,
		metrics: reg,
		state:   StateClosed,
		now:     time.Now,
	}
}

// Name returns the breaker's service name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the open→half-open transition if
// the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// CanExecute reports whether a call would be admitted right now. In half-open
// it admits only while no probe is in flight; the admitted caller becomes the
// probe.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canExecuteLocked()
}

func (b *Breaker) canExecuteLocked() bool {
	b.maybeHalfOpenLocked()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// maybeHalfOpenLocked transitions open→half-open once the cooldown elapses.
func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transitionLocked(StateHalfOpen)
		b.probeInFlight = false
		b.consecutiveSuccesses = 0
	}
}

// Call runs fn under breaker protection. When the breaker rejects, fn is not
// invoked and the error wraps ErrBreakerOpen.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	if !b.canExecuteLocked() {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("%s (%s): %w", b.name, state, ErrBreakerOpen)
	}
	b.mu.Unlock()

	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// RecordSuccess notes a successful protected call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.probeInFlight = false
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	}
}

// RecordFailure notes a failed protected call. In closed it trips to open on
// the Nth consecutive failure; any half-open failure reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.probeInFlight = false
		b.consecutiveSuccesses = 0
		b.transitionLocked(StateOpen)
		b.openedAt = b.now()
	}
}

// Reset returns the breaker to closed with cleared counters. Tests only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.transitionLocked(StateClosed)
	}
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.probeInFlight = false
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.metrics.IncrementCounter("breaker_state_change", map[string]string{
		"breaker": b.name,
		"from":    from.String(),
		"to":      to.String(),
	})
	logging.Audit(logging.AuditBreakerStateChange, logging.SeverityMedium, b.name,
		"breaker state change",
		map[string]any{"from": from.String(), "to": to.String()})
	logging.L(logging.CategoryBreaker).Info("breaker state change",
		zap.String("breaker", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// =============================================================================
// BREAKER REGISTRY
// =============================================================================

// BreakerRegistry is the process-wide set of named breakers.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
	metrics  *metrics.Registry
}

// NewBreakerRegistry creates a registry that hands out breakers with the
// given defaults.
func NewBreakerRegistry(cfg BreakerConfig, reg *metrics.Registry) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		metrics:  reg,
	}
}

// Get returns the named breaker, creating it on first use.
func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.cfg, r.metrics)
		r.breakers[name] = b
	}
	return b
}

// States returns a snapshot of all breaker states by name.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}

// AnyOpen reports whether any breaker is currently open.
func (r *BreakerRegistry) AnyOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		if b.State() == StateOpen {
			return true
		}
	}
	return false
}
