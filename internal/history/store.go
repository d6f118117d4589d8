// Package history keeps the bounded rolling window of tank readings.
//
// Readings are written to an in-memory ring on every append and, while it
// is healthy, to a durable sqlite tier as well. The first durable failure
// demotes the store to memory for the rest of the process lifetime.
package history

import (
	"context"
	"sync"

	"codeberg.org/mutker/tankctl/internal/clock"
	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/tank"
)

type Store struct {
	mu       sync.Mutex
	durable  Repository
	volatile *memoryRepository
	clock    clock.Clock
	log      logger.Logger
	cfg      Config
}

// Open builds a Store, trying the durable tier when enabled. It never fails:
// an unusable database is logged and the store starts volatile.
func Open(ctx context.Context, cfg Config, clk clock.Clock, log logger.Logger) *Store {
	if !cfg.Enabled {
		log.Info().Msg("Durable history disabled, keeping readings in memory")
		return NewStore(nil, cfg, clk, log)
	}

	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	repo, err := NewSQLiteRepository(openCtx, cfg, log)
	if err != nil {
		log.ErrorWithCode(errors.New().Wrap(ErrStorageUnavailable, err)).
			Str("path", cfg.DBPath).
			Msg("Durable history unavailable, keeping readings in memory")
		return NewStore(nil, cfg, clk, log)
	}

	return NewStore(repo, cfg, clk, log)
}

// NewStore wires a Store around an optional durable repository.
func NewStore(durable Repository, cfg Config, clk clock.Clock, log logger.Logger) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Serve <= 0 {
		cfg.Serve = DefaultServe
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	return &Store{
		durable:  durable,
		volatile: newMemoryRepository(cfg.VolatileCapacity),
		clock:    clk,
		log:      log,
		cfg:      cfg,
	}
}

// Append timestamps and stores a reading, evicting the oldest entry when
// the active tier is full. Storage failures are absorbed.
func (s *Store) Append(ctx context.Context, level, percentage float64) tank.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	reading := tank.NewReading(level, percentage, s.clock.Now())

	_ = s.volatile.Append(ctx, reading)
	if s.durable != nil {
		opCtx, cancel := s.durableContext(ctx)
		defer cancel()
		if err := s.durable.Append(opCtx, reading); err != nil {
			s.degrade("append", err)
		}
	}

	return reading
}

// Recent returns the newest n readings in chronological order.
func (s *Store) Recent(ctx context.Context, n int) []tank.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.durable != nil {
		opCtx, cancel := s.durableContext(ctx)
		defer cancel()
		readings, err := s.durable.QueryRecent(opCtx, n)
		if err == nil {
			return chronological(readings)
		}
		s.degrade("query", err)
	}

	readings, _ := s.volatile.QueryRecent(ctx, n)
	return chronological(readings)
}

// Served returns the slice handed to observers.
func (s *Store) Served(ctx context.Context) []tank.Reading {
	return s.Recent(ctx, s.cfg.Serve)
}

// Clear empties every tier.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.volatile.Clear(ctx)
	if s.durable != nil {
		opCtx, cancel := s.durableContext(ctx)
		defer cancel()
		if err := s.durable.Clear(opCtx); err != nil {
			s.degrade("clear", err)
		}
	}
}

// Durable reports whether the sqlite tier is still in use.
func (s *Store) Durable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durable != nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.durable == nil {
		return nil
	}
	err := s.durable.Close()
	s.durable = nil
	return err
}

// durableContext keeps the caller's values but drops its cancellation. Only
// cfg.OpTimeout bounds a durable call.
func (s *Store) durableContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OpTimeout)
}

// degrade drops the durable tier for good. Caller holds s.mu.
func (s *Store) degrade(op string, err error) {
	s.log.WarnWithCode(errors.New().Wrap(ErrStorageUnavailable, err)).
		Str("operation", op).
		Msg("Durable history failed, switching to memory")

	if cerr := s.durable.Close(); cerr != nil {
		s.log.Debug().Err(cerr).Msg("Failed to close durable history")
	}
	s.durable = nil
}

// chronological reverses a newest-first slice in place.
func chronological(readings []tank.Reading) []tank.Reading {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	if readings == nil {
		return []tank.Reading{}
	}
	return readings
}
