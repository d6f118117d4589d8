package transport_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/tankctl/internal/clock"
	"codeberg.org/mutker/tankctl/internal/event"
	"codeberg.org/mutker/tankctl/internal/history"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/reconcile"
	"codeberg.org/mutker/tankctl/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*reconcile.Reconciler, *transport.Hub, *httptest.Server) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	store := history.NewStore(nil, history.DefaultConfig(), clk, logger.Nop())
	rec := reconcile.New(reconcile.DefaultConfig(), store, clk, logger.Nop())
	hub := transport.NewHub(rec, transport.DefaultHubConfig(), logger.Nop())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return rec, hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEnvelope(t *testing.T, ws *websocket.Conn) event.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := event.Unmarshal(data)
	require.NoError(t, err)
	return env
}

func TestHubReplaysStateOnConnect(t *testing.T) {
	rec, _, srv := newServer(t)
	rec.OnRealReading(context.Background(), 60, 40)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer ws.Close()

	first := readEnvelope(t, ws)
	assert.Equal(t, event.MotorUpdate, first.Event)
	on, err := first.DecodeMotor()
	require.NoError(t, err)
	assert.False(t, on)

	second := readEnvelope(t, ws)
	assert.Equal(t, event.HistoryData, second.Event)
	readings, err := second.DecodeHistory()
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 40.0, readings[0].Percentage)
}

func TestHubBroadcastsToAttachedObservers(t *testing.T) {
	rec, _, srv := newServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer ws.Close()

	readEnvelope(t, ws)
	readEnvelope(t, ws)

	require.Eventually(t, func() bool { return rec.Status().Observers == 1 }, time.Second, 10*time.Millisecond)
	rec.OnMotorCommand(context.Background(), true)

	env := readEnvelope(t, ws)
	assert.Equal(t, event.MotorUpdate, env.Event)
	on, err := env.DecodeMotor()
	require.NoError(t, err)
	assert.True(t, on)
}

func TestHubDetachesOnDisconnect(t *testing.T) {
	rec, _, srv := newServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	readEnvelope(t, ws)
	readEnvelope(t, ws)
	require.Eventually(t, func() bool { return rec.Status().Observers == 1 }, time.Second, 10*time.Millisecond)

	ws.Close()
	assert.Eventually(t, func() bool { return rec.Status().Observers == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubCloseDisconnectsObservers(t *testing.T) {
	rec, hub, srv := newServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer ws.Close()
	readEnvelope(t, ws)
	readEnvelope(t, ws)

	hub.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	assert.Eventually(t, func() bool { return rec.Status().Observers == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	clk := clock.Real()
	store := history.NewStore(nil, history.DefaultConfig(), clk, logger.Nop())
	rec := reconcile.New(reconcile.DefaultConfig(), store, clk, logger.Nop())
	cfg := transport.DefaultHubConfig()
	cfg.AllowedOrigins = []string{"http://allowed.example"}
	hub := transport.NewHub(rec, cfg, logger.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
