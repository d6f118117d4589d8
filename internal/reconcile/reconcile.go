// Package reconcile is the server-side authority over tank state.
//
// A Reconciler owns the motor controller, the reading store and the
// simulation engine. Every trigger runs to completion under one lock, so
// HTTP handlers, websocket attaches, stream ingestion and the simulation
// ticker never observe a half-applied update. Broadcasts are emitted while
// the lock is held, which fixes their order per observer.
package reconcile

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/tankctl/internal/clock"
	"codeberg.org/mutker/tankctl/internal/event"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/motor"
	"codeberg.org/mutker/tankctl/internal/simulation"
	"codeberg.org/mutker/tankctl/internal/tank"
)

type Config struct {
	TickInterval time.Duration
	Simulation   simulation.Config
}

func DefaultConfig() Config {
	return Config{
		TickInterval: simulation.DefaultTickInterval,
		Simulation:   simulation.DefaultConfig(),
	}
}

type Reconciler struct {
	mu        sync.Mutex
	cfg       Config
	store     ReadingStore
	motor     *motor.Controller
	sim       *simulation.Engine
	clock     clock.Clock
	observers map[string]Observer
	log       logger.Logger
}

func New(cfg Config, store ReadingStore, clk clock.Clock, log logger.Logger) *Reconciler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = simulation.DefaultTickInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}
	sim := simulation.New(cfg.Simulation)
	cfg.Simulation = sim.Config()

	return &Reconciler{
		cfg:       cfg,
		store:     store,
		motor:     motor.NewController(),
		sim:       sim,
		clock:     clk,
		observers: make(map[string]Observer),
		log:       log,
	}
}

// OnRealReading stores a sensor reading, restarts the staleness window and
// applies auto-cutoff. It returns the stored reading and the motor state.
func (r *Reconciler) OnRealReading(ctx context.Context, level, percentage float64) (tank.Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reading := r.store.Append(ctx, level, percentage)
	r.sim.ObserveReal(reading.Timestamp, percentage)
	changed := r.motor.EvaluateAutoCutoff(percentage)

	r.broadcast(event.Reading(reading))
	if changed {
		r.log.Info().Float64("percentage", percentage).Msg("Tank full, motor off")
		r.broadcast(event.Motor(false))
	}

	return reading, r.motor.On()
}

// OnSimulatedTick advances the simulation when real data is stale and the
// motor is running. It reports whether anything was broadcast.
func (r *Reconciler) OnSimulatedTick(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	synthetic, ok := r.sim.Step(r.clock.Now(), r.motor.On())
	if !ok {
		return false
	}

	reading := r.store.Append(ctx, synthetic.Level, synthetic.Percentage)
	changed := r.motor.EvaluateAutoCutoff(reading.Percentage)

	r.broadcast(event.Reading(reading))
	if changed {
		r.log.Info().Msg("Simulation: tank full, motor off")
		r.broadcast(event.Motor(false))
	}

	r.log.Debug().
		Float64("percentage", reading.Percentage).
		Float64("level", reading.Level).
		Msg("Simulated reading")

	return true
}

// OnMotorCommand applies an operator command and always broadcasts it.
func (r *Reconciler) OnMotorCommand(_ context.Context, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.motor.Set(on)
	r.broadcast(event.Motor(bool(state)))
	r.log.Info().Stringer("motor", state).Msg("Motor toggled")

	return bool(state)
}

// OnReset empties the history, stops the motor and zeroes the simulator.
// Observers receive motor off, an empty reading and the history-cleared
// signal, in that order.
func (r *Reconciler) OnReset(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.Clear(ctx)
	r.motor.Reset()
	r.sim.Reset()

	r.broadcast(event.Motor(false))
	r.broadcast(event.Reading(tank.Empty(r.cfg.Simulation.Capacity, r.clock.Now())))
	r.broadcast(event.Cleared())

	r.log.Info().Msg("System reset")
}

// Attach registers an observer after replaying the motor state and the
// served history to it. The returned func detaches it.
func (r *Reconciler) Attach(ctx context.Context, o Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := o.Send(event.Motor(r.motor.On())); err != nil {
		r.log.Debug().Err(err).Str("observer", o.ID()).Msg("Replay failed")
		return func() {}
	}
	if err := o.Send(event.History(r.store.Served(ctx))); err != nil {
		r.log.Debug().Err(err).Str("observer", o.ID()).Msg("Replay failed")
		return func() {}
	}

	r.observers[o.ID()] = o
	r.log.Info().Str("observer", o.ID()).Int("observers", len(r.observers)).Msg("Observer attached")

	return func() { r.detach(o.ID()) }
}

func (r *Reconciler) detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.observers[id]; ok {
		delete(r.observers, id)
		r.log.Info().Str("observer", id).Int("observers", len(r.observers)).Msg("Observer detached")
	}
}

// MotorOn returns the authoritative motor state.
func (r *Reconciler) MotorOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.motor.On()
}

// History returns the served slice, oldest first.
func (r *Reconciler) History(ctx context.Context) []tank.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Served(ctx)
}

func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	return Status{
		MotorOn:    r.motor.On(),
		Durable:    r.store.Durable(),
		Observers:  len(r.observers),
		Stale:      r.sim.Stale(now),
		Simulating: r.sim.Active(now, r.motor.On()),
	}
}

// Run drives OnSimulatedTick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	r.log.Info().
		Dur("tick_interval", r.cfg.TickInterval).
		Dur("stale_after", r.cfg.Simulation.StaleAfter).
		Float64("increment", r.cfg.Simulation.Increment).
		Msg("Simulation loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.OnSimulatedTick(ctx)
		}
	}
}

// broadcast delivers e to every observer. Caller holds r.mu.
func (r *Reconciler) broadcast(e event.Envelope) {
	for id, o := range r.observers {
		if err := o.Send(e); err != nil {
			r.log.Warn().Err(err).Str("observer", id).Str("event", e.Event).Msg("Dropping observer")
			delete(r.observers, id)
		}
	}
}
