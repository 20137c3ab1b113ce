package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// GuardConfig tunes the circuit breaker that shields a Saver.
type GuardConfig struct {
	Name                string  `json:"name" yaml:"name"`
	MaxRequests         uint32  `json:"max_requests" yaml:"max_requests"`                 // probes allowed while half-open
	IntervalSeconds     int     `json:"interval_seconds" yaml:"interval_seconds"`         // closed-state count reset window
	TimeoutSeconds      int     `json:"timeout_seconds" yaml:"timeout_seconds"`           // open -> half-open delay
	ErrorRateThreshold  float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // percent, evaluated after 10 requests
	ConsecutiveFailures uint32  `json:"consecutive_failures" yaml:"consecutive_failures"` // trip after this many in a row
}

// DefaultGuardConfig returns settings suited to a local database that
// may disappear mid-experiment without taking the run down with it.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:                name,
		MaxRequests:         2,
		IntervalSeconds:     60,
		TimeoutSeconds:      30,
		ErrorRateThreshold:  50.0,
		ConsecutiveFailures: 5,
	}
}

// Interval returns the closed-state reset window as a duration.
func (c GuardConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout returns the open-state recovery delay as a duration.
func (c GuardConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Guarded wraps a Saver with a circuit breaker. Once the breaker opens,
// writes fail fast instead of stalling the training loop on a dead store.
type Guarded struct {
	inner   Saver
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewGuarded builds the breaker around inner using cfg.
func NewGuarded(inner Saver, cfg GuardConfig, log zerolog.Logger) *Guarded {
	g := &Guarded{inner: inner, log: log.With().Str("breaker", cfg.Name).Logger()}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval(),
		Timeout:     cfg.Timeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests >= 10 {
				errorRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
				if errorRate >= cfg.ErrorRateThreshold {
					return true
				}
			}
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			evt := g.log.Warn()
			if to == gobreaker.StateClosed {
				evt = g.log.Info()
			}
			evt.Str("from", from.String()).Str("to", to.String()).Msg("sweep store breaker state change")
		},
	}
	g.breaker = gobreaker.NewCircuitBreaker(settings)
	return g
}

// SaveSweep forwards to the wrapped Saver through the breaker.
func (g *Guarded) SaveSweep(ctx context.Context, res SweepResult) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.inner.SaveSweep(ctx, res)
	})
	if err != nil {
		return fmt.Errorf("save sweep %s: %w", res.Function, err)
	}
	return nil
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

// Counts exposes the breaker counters for health reporting.
func (g *Guarded) Counts() gobreaker.Counts {
	return g.breaker.Counts()
}
