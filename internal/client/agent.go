// Package client is the observer side: it follows the server while
// connected and falls back to a local fill simulation when it is not.
package client

import (
	"time"

	"codeberg.org/mutker/tankctl/internal/event"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/motor"
	"codeberg.org/mutker/tankctl/internal/simulation"
	"codeberg.org/mutker/tankctl/internal/tank"
	"codeberg.org/mutker/tankctl/internal/transport"
)

const (
	DefaultGrace         = 3000 * time.Millisecond
	DefaultHistoryWindow = 20
)

type Config struct {
	Capacity      float64
	Increment     float64
	Grace         time.Duration
	TickInterval  time.Duration
	HistoryWindow int
	VolumeLitres  float64
}

func DefaultConfig() Config {
	return Config{
		Capacity:      tank.DefaultCapacity,
		Increment:     simulation.ClientIncrement,
		Grace:         DefaultGrace,
		TickInterval:  simulation.DefaultTickInterval,
		HistoryWindow: DefaultHistoryWindow,
		VolumeLitres:  tank.DefaultVolumeLitres,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.Increment <= 0 {
		c.Increment = d.Increment
	}
	if c.Grace <= 0 {
		c.Grace = d.Grace
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.VolumeLitres <= 0 {
		c.VolumeLitres = d.VolumeLitres
	}
	return c
}

// View is what an observer displays.
type View struct {
	State     ConnectivityState `json:"state"`
	Reading   tank.Reading      `json:"reading"`
	MotorOn   bool              `json:"motorOn"`
	Status    tank.Status       `json:"status"`
	Volume    float64           `json:"volume"`
	History   []tank.Reading    `json:"history"`
	Simulated bool              `json:"simulated"`
}

// Agent holds one observer's state. It is not safe for concurrent use;
// Session confines it to a single goroutine.
type Agent struct {
	cfg     Config
	state   ConnectivityState
	motor   *motor.Controller
	sim     *simulation.Engine
	current tank.Reading
	history []tank.Reading

	// graceFrom is when the current grace period began; zero when unarmed.
	graceFrom time.Time

	log logger.Logger
}

func NewAgent(cfg Config, log logger.Logger) *Agent {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Agent{
		cfg:   cfg,
		state: Connecting,
		motor: motor.NewController(),
		sim: simulation.New(simulation.Config{
			Increment: cfg.Increment,
			Capacity:  cfg.Capacity,
		}),
		current: tank.Empty(cfg.Capacity, time.Time{}),
		log:     log,
	}
}

func (a *Agent) State() ConnectivityState {
	return a.state
}

// HandleSignal applies one transport signal.
func (a *Agent) HandleSignal(s transport.Signal) {
	switch s.Kind {
	case transport.SignalConnected:
		a.Connectivity(EventConnected, s.At)
	case transport.SignalDisconnected:
		a.Connectivity(EventDisconnected, s.At)
	case transport.SignalConnectError:
		a.Connectivity(EventConnectError, s.At)
	case transport.SignalMessage:
		a.Apply(s.Envelope)
	}
}

// Connectivity feeds ev through Transition and arms or disarms the grace
// period and the local simulation to match the new state.
func (a *Agent) Connectivity(ev Event, at time.Time) {
	prev := a.state
	next := Transition(prev, ev)

	switch {
	case next == Live:
		a.graceFrom = time.Time{}
		if prev == OfflineSimulated {
			a.log.Info().Msg("Server reachable again, discarding local simulation")
		}
		a.sim.Reset()
	case next == Connecting && a.graceFrom.IsZero():
		a.graceFrom = at
	case next == OfflineSimulated && prev != OfflineSimulated:
		a.graceFrom = time.Time{}
		a.sim.Reset()
		a.sim.Seed(a.current.Percentage)
		a.log.Warn().Str("event", ev.String()).Msg("Server unreachable, simulating locally")
	}

	a.state = next
	if prev != next {
		a.log.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("Connectivity changed")
	}
}

// GraceDeadline is when the pending grace period elapses, if one is armed.
func (a *Agent) GraceDeadline() (time.Time, bool) {
	if a.graceFrom.IsZero() || a.state != Connecting {
		return time.Time{}, false
	}
	return a.graceFrom.Add(a.cfg.Grace), true
}

// CheckGrace raises GraceElapsed once now reaches the deadline. It reports
// whether the state changed.
func (a *Agent) CheckGrace(now time.Time) bool {
	deadline, ok := a.GraceDeadline()
	if !ok || now.Before(deadline) {
		return false
	}
	a.Connectivity(EventGraceElapsed, now)
	return true
}

// Apply takes a server push verbatim. Pushes are ignored unless Live.
func (a *Agent) Apply(e event.Envelope) {
	if a.state != Live {
		a.log.Debug().Str("event", e.Event).Str("state", a.state.String()).Msg("Ignoring push")
		return
	}

	switch e.Event {
	case event.NewReading:
		r, err := e.DecodeReading()
		if err != nil {
			a.log.Warn().Err(err).Msg("Bad reading push")
			return
		}
		a.record(r)
	case event.MotorUpdate:
		on, err := e.DecodeMotor()
		if err != nil {
			a.log.Warn().Err(err).Msg("Bad motor push")
			return
		}
		a.motor.Set(on)
	case event.HistoryData:
		readings, err := e.DecodeHistory()
		if err != nil {
			a.log.Warn().Err(err).Msg("Bad history push")
			return
		}
		a.ReplaceHistory(readings)
	default:
		a.log.Debug().Str("event", e.Event).Msg("Unknown push")
	}
}

// ReplaceHistory overwrites the local window. An empty history resets the
// current reading to an empty tank.
func (a *Agent) ReplaceHistory(readings []tank.Reading) {
	if len(readings) == 0 {
		a.history = nil
		a.current = tank.Empty(a.cfg.Capacity, a.current.Timestamp)
		return
	}
	if len(readings) > a.cfg.HistoryWindow {
		readings = readings[len(readings)-a.cfg.HistoryWindow:]
	}
	a.history = append([]tank.Reading(nil), readings...)
	a.current = a.history[len(a.history)-1]
}

// Simulating reports whether Tick currently produces readings.
func (a *Agent) Simulating() bool {
	return a.state == OfflineSimulated && a.motor.On()
}

// Tick advances the local simulation. Reaching 100% switches the local
// motor off, which ends ticking until the operator starts it again.
func (a *Agent) Tick(now time.Time) (tank.Reading, bool) {
	if !a.Simulating() {
		return tank.Reading{}, false
	}

	r, ok := a.sim.Step(now, true)
	if !ok {
		return tank.Reading{}, false
	}
	a.record(r)

	if a.motor.EvaluateAutoCutoff(r.Percentage) {
		a.log.Info().Float64("percentage", r.Percentage).Msg("Tank full, motor stopped locally")
	}
	return r, true
}

// SetMotor is the optimistic local half of an operator motor command.
func (a *Agent) SetMotor(on bool) {
	a.motor.Set(on)
	if on && a.state == OfflineSimulated {
		a.sim.Seed(a.current.Percentage)
	}
}

// Reset is the local half of an operator reset.
func (a *Agent) Reset(at time.Time) {
	a.motor.Reset()
	a.sim.Reset()
	a.history = nil
	a.current = tank.Empty(a.cfg.Capacity, at)
}

func (a *Agent) View() View {
	return View{
		State:     a.state,
		Reading:   a.current,
		MotorOn:   a.motor.On(),
		Status:    tank.StatusFor(a.current.Percentage),
		Volume:    tank.Volume(a.current.Percentage, a.cfg.VolumeLitres),
		History:   append([]tank.Reading(nil), a.history...),
		Simulated: a.state == OfflineSimulated,
	}
}

func (a *Agent) record(r tank.Reading) {
	a.current = r
	a.history = append(a.history, r)
	if len(a.history) > a.cfg.HistoryWindow {
		a.history = a.history[len(a.history)-a.cfg.HistoryWindow:]
	}
}
