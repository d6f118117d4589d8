package client

import (
	"context"
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/tank"
	"codeberg.org/mutker/tankctl/internal/transport"
)

type CommandKind uint8

const (
	CommandMotorOn CommandKind = iota
	CommandMotorOff
	CommandReset
)

type Command struct {
	Kind CommandKind
}

// Server is the REST surface a Session calls.
type Server interface {
	History(ctx context.Context) ([]tank.Reading, error)
	SetMotor(ctx context.Context, on bool) (bool, error)
	Reset(ctx context.Context) error
}

// Session owns an Agent and drives it from one goroutine: transport
// signals, operator commands, the simulation tick and the grace timer all
// arrive on channels.
type Session struct {
	agent   *Agent
	server  Server
	signals <-chan transport.Signal
	log     logger.Logger
}

func NewSession(agent *Agent, server Server, signals <-chan transport.Signal, log logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{agent: agent, server: server, signals: signals, log: log}
}

type bootstrapResult struct {
	readings []tank.Reading
	err      error
}

// Run returns when ctx is done or the signal channel closes. onView is
// called from the loop goroutine after every change.
func (s *Session) Run(ctx context.Context, commands <-chan Command, onView func(View)) error {
	var (
		ticker *time.Ticker
		tickC  <-chan time.Time
		grace  *time.Timer
		graceC <-chan time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	stopGrace := func() {
		if grace != nil {
			grace.Stop()
			grace, graceC = nil, nil
		}
	}
	defer stopTicker()
	defer stopGrace()

	// syncTimers starts and stops the tick and grace timers to match the
	// agent's state after each event.
	syncTimers := func() {
		if s.agent.Simulating() {
			if ticker == nil {
				ticker = time.NewTicker(s.agent.cfg.TickInterval)
				tickC = ticker.C
			}
		} else {
			stopTicker()
		}

		if deadline, ok := s.agent.GraceDeadline(); ok {
			if grace == nil {
				grace = time.NewTimer(time.Until(deadline))
				graceC = grace.C
			}
		} else {
			stopGrace()
		}
	}

	publish := func() {
		syncTimers()
		if onView != nil {
			onView(s.agent.View())
		}
	}

	boot := make(chan bootstrapResult, 1)
	go func() {
		readings, err := s.server.History(ctx)
		boot <- bootstrapResult{readings: readings, err: err}
	}()

	failures := make(chan error, 4)
	call := func(what string, fn func(context.Context) error) {
		go func() {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				select {
				case failures <- errors.New().Wrap(ErrChannelUnavailable, err).WithMessage(what + " failed"):
				default:
				}
			}
		}()
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			return nil

		case res := <-boot:
			boot = nil
			if res.err != nil {
				s.log.Warn().Err(res.err).Msg("Bootstrap failed")
				s.agent.Connectivity(EventBootstrapFailed, time.Now())
			} else if s.agent.State() != Live {
				// Once live, the server's replay is newer than this.
				s.agent.ReplaceHistory(res.readings)
			}
			publish()

		case sig, ok := <-s.signals:
			if !ok {
				return nil
			}
			s.agent.HandleSignal(sig)
			publish()

		case cmd := <-commands:
			switch cmd.Kind {
			case CommandMotorOn, CommandMotorOff:
				on := cmd.Kind == CommandMotorOn
				s.agent.SetMotor(on)
				call("motor command", func(ctx context.Context) error {
					_, err := s.server.SetMotor(ctx, on)
					return err
				})
			case CommandReset:
				s.agent.Reset(time.Now())
				call("reset", s.server.Reset)
			}
			publish()

		case err := <-failures:
			s.log.Warn().Err(err).Msg("Server command not delivered")

		case now := <-graceC:
			grace, graceC = nil, nil
			s.agent.CheckGrace(now)
			publish()

		case now := <-tickC:
			if _, ok := s.agent.Tick(now); ok {
				publish()
			}
		}
	}
}
