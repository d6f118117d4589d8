// Package api exposes the reconciler over HTTP.
package api

import (
	"context"
	"io"
	"net/http"

	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/reconcile"
	"codeberg.org/mutker/tankctl/internal/tank"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Controller is the part of the reconciler the HTTP surface drives.
type Controller interface {
	OnRealReading(ctx context.Context, level, percentage float64) (tank.Reading, bool)
	OnMotorCommand(ctx context.Context, on bool) bool
	OnReset(ctx context.Context)
	History(ctx context.Context) []tank.Reading
	Status() reconcile.Status
}

type Config struct {
	CORSOrigins []string
}

func NewRouter(ctrl Controller, ws http.Handler, log logger.Logger) *mux.Router {
	if log == nil {
		log = logger.Nop()
	}
	h := &handler{ctrl: ctrl, log: log}

	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	s := r.PathPrefix("/api").Subrouter()
	s.HandleFunc("/reading", h.postReading).Methods(http.MethodPost)
	s.HandleFunc("/history", h.getHistory).Methods(http.MethodGet)
	s.HandleFunc("/motor", h.postMotor).Methods(http.MethodPost)
	s.HandleFunc("/reset", h.postReset).Methods(http.MethodPost)
	s.HandleFunc("/status", h.getStatus).Methods(http.MethodGet)

	if ws != nil {
		r.Handle("/ws", ws).Methods(http.MethodGet)
	}

	return r
}

// NewHandler wraps the router with CORS and access logging.
func NewHandler(ctrl Controller, ws http.Handler, cfg Config, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	router := NewRouter(ctrl, ws, log)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return handlers.CustomLoggingHandler(io.Discard, cors(router), accessLog(log))
}

func accessLog(log logger.Logger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		log.Debug().
			Str("method", p.Request.Method).
			Str("path", p.URL.Path).
			Int("status", p.StatusCode).
			Int("size", p.Size).
			Str("remote", p.Request.RemoteAddr).
			Msg("HTTP request")
	}
}
