package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [Group] produced a result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// member pairs a provider with its breaker.
type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Group holds providers of one kind in priority order. Add members before
// sharing the group between goroutines; calls are then safe for concurrent
// use.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup returns a group whose members will each get a breaker built from
// cfg (Name is replaced by the member name).
func NewGroup[T any](cfg BreakerConfig) *Group[T] {
	return &Group[T]{cfg: cfg}
}

// Add appends a provider. Providers are tried in the order added.
func (g *Group[T]) Add(name string, value T) *Group[T] {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(cfg)})
	return g
}

// Len returns the number of members.
func (g *Group[T]) Len() int { return len(g.members) }

// Names returns member names in priority order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// Breaker returns the breaker guarding the named member, or nil.
func (g *Group[T]) Breaker(name string) *CircuitBreaker {
	for _, m := range g.members {
		if m.name == name {
			return m.breaker
		}
	}
	return nil
}

// Do calls fn on each member in order until one succeeds and returns that
// result. A member whose breaker is open is skipped. An error that does not
// count as a provider failure (see [BreakerConfig.IsFailure]) is returned
// immediately without trying further members, as is a done ctx.
//
// When every member fails the error wraps [ErrAllFailed] and each member's
// error.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(T) (R, error)) (R, error) {
	var zero R
	if len(g.members) == 0 {
		return zero, fmt.Errorf("%w: no providers configured", ErrAllFailed)
	}

	isFailure := g.cfg.IsFailure
	if isFailure == nil {
		isFailure = CountsAsFailure
	}

	errs := make([]error, 0, len(g.members))
	for i := range g.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		m := &g.members[i]

		var result R
		err := m.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(m.value)
			return callErr
		})
		switch {
		case err == nil:
			if i > 0 {
				slog.Info("served by fallback provider", "provider", m.name)
			}
			return result, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping provider with open circuit", "provider", m.name)
		case !isFailure(err):
			return zero, err
		default:
			slog.Warn("provider failed", "provider", m.name, "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
