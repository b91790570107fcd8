package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when every entry in a [Chain] fails or
// has an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// chainEntry pairs a backend with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain holds a primary backend and zero or more secondaries of the same
// type, each behind its own circuit breaker. Backends are tried in
// registration order; open-breaker entries are skipped.
type Chain[T any] struct {
	entries    []chainEntry[T]
	breakerCfg BreakerConfig
}

// NewChain creates a Chain with primary as the first entry. breakerCfg is
// the template for every per-entry breaker (the Name field is overridden
// per entry).
func NewChain[T any](primaryName string, primary T, breakerCfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{breakerCfg: breakerCfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a secondary backend, tried after all earlier entries.
func (c *Chain[T]) Add(name string, backend T) {
	cfg := c.breakerCfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(cfg),
	})
}

// Run tries fn against each backend in order until one succeeds. A
// method-level type parameter is not possible in Go, so the result-carrying
// variant lives in [RunChain].
func (c *Chain[T]) Run(fn func(T) error) error {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]
		err := e.breaker.Do(func() error { return fn(e.backend) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", e.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", e.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// RunChain tries fn against each backend in c until one returns a result.
func RunChain[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		result R
		zero   R
	)
	err := c.Run(func(backend T) error {
		var innerErr error
		result, innerErr = fn(backend)
		return innerErr
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}
