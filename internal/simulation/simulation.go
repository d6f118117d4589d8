// Package simulation produces synthetic readings while no real sensor data
// is arriving.
//
// The server and every observer each own an independent Engine. They are
// never shared and may use different increments, so fill rates differ
// depending on which side is simulating.
package simulation

import (
	"time"

	"codeberg.org/mutker/tankctl/internal/tank"
)

const (
	DefaultTickInterval = 500 * time.Millisecond
	DefaultStaleAfter   = 3000 * time.Millisecond

	// ServerIncrement is the percentage added per tick by the server.
	ServerIncrement = 2.0

	// ClientIncrement is the percentage added per tick by an offline observer.
	ClientIncrement = 0.5
)

type Config struct {
	Increment  float64
	StaleAfter time.Duration
	Capacity   float64
}

// DefaultConfig returns the server-side simulator settings.
func DefaultConfig() Config {
	return Config{
		Increment:  ServerIncrement,
		StaleAfter: DefaultStaleAfter,
		Capacity:   tank.DefaultCapacity,
	}
}

// Clock is the simulator's private state: when real data was last seen
// (zero means never) and the synthetic fill percentage.
type Clock struct {
	LastReal   time.Time
	Percentage float64
}

// Engine is not safe for concurrent use; owners serialize access.
type Engine struct {
	cfg   Config
	clock Clock
}

func New(cfg Config) *Engine {
	if cfg.Increment <= 0 {
		cfg.Increment = ServerIncrement
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = tank.DefaultCapacity
	}
	return &Engine{cfg: cfg}
}

// ObserveReal records the arrival of a real reading and re-seeds the
// accumulator from it, so a later simulation continues from real data.
func (e *Engine) ObserveReal(at time.Time, percentage float64) {
	e.clock.LastReal = at
	e.clock.Percentage = tank.ClampPercentage(percentage)
}

// Seed sets the accumulator without touching the real-data timestamp.
func (e *Engine) Seed(percentage float64) {
	e.clock.Percentage = tank.ClampPercentage(percentage)
}

// Stale reports whether real data is absent for longer than the threshold.
func (e *Engine) Stale(now time.Time) bool {
	if e.clock.LastReal.IsZero() {
		return true
	}
	return now.Sub(e.clock.LastReal) > e.cfg.StaleAfter
}

// Active reports whether Step would produce a reading at now.
func (e *Engine) Active(now time.Time, motorOn bool) bool {
	return motorOn && e.Stale(now)
}

// Step advances the accumulator by one tick. It produces a reading only
// while data is stale and the motor is on; otherwise the accumulator holds
// and nothing is emitted. The result never leaves [0,100].
func (e *Engine) Step(now time.Time, motorOn bool) (tank.Reading, bool) {
	if !e.Active(now, motorOn) {
		return tank.Reading{}, false
	}

	e.clock.Percentage = tank.Round1(tank.ClampPercentage(e.clock.Percentage + e.cfg.Increment))

	return tank.Synthetic(e.clock.Percentage, e.cfg.Capacity, now), true
}

// Reset empties the accumulator and forgets real data.
func (e *Engine) Reset() {
	e.clock = Clock{}
}

// Snapshot returns a copy of the simulator state.
func (e *Engine) Snapshot() Clock {
	return e.clock
}

func (e *Engine) Config() Config {
	return e.cfg
}
