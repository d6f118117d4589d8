// Package transport carries events between the reconciler and observers
// over websockets.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/event"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/reconcile"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Attacher is the part of the reconciler the hub needs.
type Attacher interface {
	Attach(ctx context.Context, o reconcile.Observer) func()
}

// Hub upgrades HTTP requests to websockets and attaches each connection to
// the reconciler as an observer.
type Hub struct {
	rec      Attacher
	cfg      HubConfig
	upgrader websocket.Upgrader
	log      logger.Logger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

func NewHub(rec Attacher, cfg HubConfig, log logger.Logger) *Hub {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	h := &Hub{rec: rec, cfg: cfg, log: log, conns: make(map[*conn]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	c := newConn(ws, h.cfg)
	if !h.track(c) {
		ws.Close()
		return
	}
	go c.writePump(h.log)

	detach := h.rec.Attach(r.Context(), c)
	c.readPump()

	detach()
	c.close()
	h.untrack(c)
}

// Close disconnects every observer. Hijacked connections are not closed by
// http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.conns {
		c.close()
	}
}

func (h *Hub) track(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Hub) untrack(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// conn is one observer. Send only enqueues; writePump owns the socket's
// write side.
type conn struct {
	id   string
	ws   *websocket.Conn
	cfg  HubConfig
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn, cfg HubConfig) *conn {
	return &conn{
		id:   uuid.NewString(),
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(e event.Envelope) error {
	errFactory := errors.New()

	frame, err := event.Marshal(e)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	select {
	case <-c.done:
		return errFactory.WithMessage(errors.ErrChannelUnavailable, "observer closed")
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return errFactory.WithMessage(errors.ErrChannelUnavailable, "observer send buffer full")
	}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump discards inbound frames and returns once the peer goes away.
func (c *conn) readPump() {
	c.ws.SetReadLimit(maxInboundMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) writePump(log logger.Logger) {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("observer", c.id).Msg("Write failed")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}
