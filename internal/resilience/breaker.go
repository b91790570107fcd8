// Package resilience provides the failure-isolation primitives used around
// the pipeline's external services: a three-state circuit breaker and a
// provider chain that fails over from a primary backend to healthy
// secondaries.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// its cool-down has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the cool-down elapses.
	BreakerOpen

	// BreakerProbing lets a limited number of calls through to test whether
	// the backend has recovered.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero-value fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// TripAfter is the number of consecutive failures before the breaker
	// opens. Default: 5.
	TripAfter int

	// CoolDown is how long the breaker stays open before probing the
	// backend again. Default: 30s.
	CoolDown time.Duration

	// ProbeBudget is how many probe calls are allowed while probing before
	// the breaker decides. Default: 3.
	ProbeBudget int
}

// Breaker is a classic three-state circuit breaker
// (closed → open → probing).
type Breaker struct {
	name        string
	tripAfter   int
	coolDown    time.Duration
	probeBudget int

	mu         sync.Mutex
	state      BreakerState
	failStreak int
	openedAt   time.Time
	probes     int
	probeFails int
}

// NewBreaker creates a Breaker from cfg, filling defaults for zero fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Breaker{
		name:        cfg.Name,
		tripAfter:   cfg.TripAfter,
		coolDown:    cfg.CoolDown,
		probeBudget: cfg.ProbeBudget,
	}
}

// State reports the breaker's current state, accounting for an elapsed
// cool-down.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.coolDown {
		return BreakerProbing
	}
	return b.state
}

// Do runs fn if the breaker allows it. While open it returns
// [ErrBreakerOpen] without invoking fn; while probing only ProbeBudget calls
// get through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.probes = 0
		b.probeFails = 0
		slog.Info("breaker probing backend", "name", b.name)

	case BreakerProbing:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == BreakerProbing
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = time.Now()

	if probing {
		b.probeFails++
		b.state = BreakerOpen
		b.failStreak = b.tripAfter
		slog.Warn("breaker re-opened after failed probe", "name", b.name)
		return
	}

	b.failStreak++
	if b.failStreak >= b.tripAfter {
		b.state = BreakerOpen
		slog.Warn("breaker opened",
			"name", b.name,
			"consecutive_failures", b.failStreak)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeBudget {
			b.state = BreakerClosed
			b.failStreak = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("breaker closed after successful probes", "name", b.name)
		}
		return
	}
	b.failStreak = 0
}
