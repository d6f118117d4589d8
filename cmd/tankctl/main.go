package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/tankctl/internal/api"
	"codeberg.org/mutker/tankctl/internal/clock"
	"codeberg.org/mutker/tankctl/internal/config"
	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/history"
	"codeberg.org/mutker/tankctl/internal/ingest"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/pid"
	"codeberg.org/mutker/tankctl/internal/reconcile"
	"codeberg.org/mutker/tankctl/internal/simulation"
	"codeberg.org/mutker/tankctl/internal/transport"
)

const shutdownTimeout = 5 * time.Second

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel.String(), logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	errFactory := errors.New()

	if err := pid.Write(cfg.PIDFile); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("Failed to write PID file")
		}
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.ErrorWithCode(errFactory.Wrap(errors.ErrMainLoop, err)).Msg("Exiting with error")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	errFactory := errors.New()
	clk := clock.Real()

	store := history.Open(ctx, history.Config{
		Enabled:          cfg.Storage.Enabled,
		DBPath:           cfg.Storage.Path,
		Capacity:         cfg.History.Capacity,
		VolatileCapacity: cfg.History.VolatileCapacity,
		Serve:            cfg.History.Serve,
		OpenTimeout:      history.DefaultOpenTimeout,
		OpTimeout:        history.DefaultOpTimeout,
	}, clk, logger.Component("history"))
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close history")
		}
	}()

	rec := reconcile.New(reconcile.Config{
		TickInterval: cfg.TickInterval,
		Simulation: simulation.Config{
			Increment:  cfg.SimIncrement,
			StaleAfter: cfg.StaleAfter,
			Capacity:   cfg.Capacity,
		},
	}, store, clk, logger.Component("reconcile"))

	hub := transport.NewHub(rec, transport.HubConfig{
		AllowedOrigins: cfg.CORSOrigins,
	}, logger.Component("ws"))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewHandler(rec, hub, api.Config{CORSOrigins: cfg.CORSOrigins}, logger.Component("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = rec.Run(runCtx)
	}()

	if cfg.Kafka.Enabled {
		consumer, err := ingest.NewConsumer(ingest.Config{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			GroupID:     cfg.Kafka.Group,
			PollTimeout: cfg.Kafka.PollTimeout,
		}, rec, logger.Component("ingest"))
		if err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = consumer.Run(runCtx)
			if err := consumer.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close Kafka reader")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("listen", cfg.Listen).
			Bool("durable", store.Durable()).
			Bool("kafka", cfg.Kafka.Enabled).
			Msg("tankctl started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			result = errFactory.Wrap(errors.ErrServeHTTP, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	hub.Close()

	stop()
	wg.Wait()

	return result
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
