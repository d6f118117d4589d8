package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/tankctl/internal/event"
	"codeberg.org/mutker/tankctl/internal/logger"
	"github.com/gorilla/websocket"
)

// SignalKind is a transport lifecycle or data signal.
type SignalKind uint8

const (
	SignalConnected SignalKind = iota
	SignalDisconnected
	SignalConnectError
	SignalMessage
)

func (k SignalKind) String() string {
	switch k {
	case SignalConnected:
		return "CONNECTED"
	case SignalDisconnected:
		return "DISCONNECTED"
	case SignalConnectError:
		return "CONNECT_ERROR"
	case SignalMessage:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

type Signal struct {
	Kind     SignalKind
	At       time.Time
	Envelope event.Envelope
	Err      error
}

type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	Header           http.Header
}

// Client keeps a websocket to the server open, reconnecting with backoff,
// and reports everything that happens as Signals.
type Client struct {
	cfg     ClientConfig
	dialer  *websocket.Dialer
	signals chan Signal
	log     logger.Logger
}

func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		signals: make(chan Signal, 16),
		log:     log,
	}
}

// Signals is closed when Run returns.
func (c *Client) Signals() <-chan Signal {
	return c.signals
}

// Run connects and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.signals)

	backoff := NewBackoff(c.cfg.InitialBackoff, c.cfg.MaxBackoff)

	for {
		ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Debug().Err(err).Str("url", c.cfg.URL).Msg("Connect failed")
			c.emit(ctx, Signal{Kind: SignalConnectError, At: time.Now(), Err: err})
		} else {
			backoff.Reset()
			c.emit(ctx, Signal{Kind: SignalConnected, At: time.Now()})
			err = c.read(ctx, ws)
			if ctx.Err() != nil {
				return nil
			}
			c.emit(ctx, Signal{Kind: SignalDisconnected, At: time.Now(), Err: err})
		}

		wait := backoff.Next()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Client) read(ctx context.Context, ws *websocket.Conn) error {
	var once sync.Once
	closeConn := func() { once.Do(func() { ws.Close() }) }
	defer closeConn()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-stop:
		}
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		env, err := event.Unmarshal(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("Ignoring malformed frame")
			continue
		}
		c.emit(ctx, Signal{Kind: SignalMessage, At: time.Now(), Envelope: env})
	}
}

func (c *Client) emit(ctx context.Context, s Signal) {
	select {
	case c.signals <- s:
	case <-ctx.Done():
	}
}
