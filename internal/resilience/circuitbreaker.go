// Package resilience guards calls to remote providers (transcription, chat
// completion, speech synthesis) with circuit breakers and ordered failover.
//
// A [CircuitBreaker] stops calling a provider after repeated failures and
// tries it again once a cool-down has passed. [Group] orders several
// providers of one kind, each behind its own breaker, and tries them in turn.
// Errors that describe the request rather than the provider's health, such as
// a cancelled context or an empty transcript, neither trip a breaker nor
// cause failover.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// rejecting calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
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

// BreakerConfig tunes a [CircuitBreaker].
type BreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes successful half-open calls close the breaker. Default: 1.
	Probes int

	// IsFailure decides whether an error counts against the provider.
	// Default: [CountsAsFailure].
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)
}

// CountsAsFailure reports whether err reflects provider health. Context
// cancellation and deadline errors are the caller's doing and return false.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreaker is a closed/open/half-open breaker. Safe for concurrent use.
type CircuitBreaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int // trials currently running in half-open
	passed   int // trials that succeeded in half-open
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take their
// defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker is rejecting calls, and records the
// outcome. Errors for which IsFailure returns false are passed through
// without affecting the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	var change func()
	cb.mu.Lock()
	switch {
	case callErr == nil:
		change = cb.onSuccess(trial)
	case cb.cfg.IsFailure(callErr):
		change = cb.onFailure(trial)
	case trial:
		cb.inflight--
	}
	cb.mu.Unlock()

	if change != nil {
		change()
	}
	return callErr
}

// admit decides whether a call may proceed and whether it is a half-open
// trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	var change func()
	defer func() {
		if change != nil {
			change()
		}
	}()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		change = cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.inflight+cb.passed >= cb.cfg.Probes {
			return false, ErrCircuitOpen
		}
		cb.inflight++
		return true, nil
	}
	return false, nil
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(trial bool) func() {
	if !trial {
		cb.failures = 0
		return nil
	}
	cb.inflight--
	cb.passed++
	if cb.passed >= cb.cfg.Probes {
		return cb.transition(StateClosed)
	}
	return nil
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(trial bool) func() {
	if trial {
		cb.inflight--
		return cb.transition(StateOpen)
	}
	if cb.state != StateClosed {
		return nil
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		return cb.transition(StateOpen)
	}
	return nil
}

// transition must be called with cb.mu held. The returned func reports the
// change and must be called after unlocking.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateHalfOpen:
		cb.inflight, cb.passed = 0, 0
	case StateClosed:
		cb.failures, cb.inflight, cb.passed = 0, 0, 0
	}

	name, hook := cb.cfg.Name, cb.cfg.OnStateChange
	return func() {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "circuit breaker state changed",
			"name", name, "from", from.String(), "to", to.String())
		if hook != nil {
			hook(name, from, to)
		}
	}
}

// State returns the current state. An open breaker whose cool-down has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.transition(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	if change != nil {
		change()
	}
}
