// Package ingest feeds sensor readings published on Kafka into the
// reconciler, alongside the HTTP reading endpoint.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/tank"
	"github.com/segmentio/kafka-go"
)

const DefaultPollTimeout = 5 * time.Second

type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Brokers:     []string{"localhost:9092"},
		Topic:       "tank.readings",
		GroupID:     "tankctl",
		PollTimeout: DefaultPollTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if len(c.Brokers) == 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "at least one broker is required")
	}
	if strings.TrimSpace(c.Topic) == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "topic must not be empty")
	}
	if strings.TrimSpace(c.GroupID) == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "consumer group must not be empty")
	}
	return nil
}

// Sink receives validated readings.
type Sink interface {
	OnRealReading(ctx context.Context, level, percentage float64) (tank.Reading, bool)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	cfg    Config
	reader messageReader
	sink   Sink
	log    logger.Logger
}

func NewConsumer(cfg Config, sink Sink, log logger.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
	})

	return newConsumer(cfg, reader, sink, log), nil
}

func newConsumer(cfg Config, reader messageReader, sink Sink, log logger.Logger) *Consumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{cfg: cfg, reader: reader, sink: sink, log: log}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run consumes until ctx is cancelled or the reader is closed. Undecodable
// messages are logged and committed so they are not redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Str("brokers", strings.Join(c.cfg.Brokers, ",")).
		Msg("Reading consumer started")
	defer c.log.Info().Msg("Reading consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return nil
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			c.log.Error().Err(err).Msg("Fetch failed")
			continue
		}

		c.handle(ctx, msg)

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("Commit failed")
		}
		commitCancel()
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	level, percentage, err := decodeReading(msg.Value)
	if err != nil {
		c.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Dropping reading")
		return
	}
	c.sink.OnRealReading(ctx, level, percentage)
}

type readingMessage struct {
	Level      *float64 `json:"level"`
	Percentage *float64 `json:"percentage"`
}

func decodeReading(raw []byte) (level, percentage float64, err error) {
	errFactory := errors.New()

	var m readingMessage
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return 0, 0, errFactory.Wrap(ErrDecodeReading, err)
	}
	if m.Level == nil || m.Percentage == nil {
		return 0, 0, errFactory.WithMessage(ErrDecodeReading, "level and percentage are required")
	}
	if err := tank.Validate(*m.Level, *m.Percentage); err != nil {
		return 0, 0, errFactory.Wrap(ErrDecodeReading, err)
	}
	return *m.Level, *m.Percentage, nil
}
