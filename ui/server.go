// Package ui serves the diagnostics endpoints of a running session.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

type App struct {
	Name    string    `json:"name"`
	Started time.Time `json:"started"`
}

type Config struct {
	Port int
	App  App
	// Queries returns the JSON-serialisable status of the session's queries.
	Queries func() interface{}
	// Metrics dumps the in-memory metrics, matching InmemSink.DisplayMetrics.
	Metrics func(w http.ResponseWriter, r *http.Request) (interface{}, error)
	Logger  zerolog.Logger
}

type Server struct {
	config Config
	ln     net.Listener
	srv    *http.Server
	done   chan struct{}
}

func NewServer(config Config) *Server {
	return &Server{config: config}
}

// Start binds the port synchronously so that a port conflict is reported to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to bind diagnostics ui on port %d: %w", s.config.Port, err)
	}
	s.ln = ln
	s.done = make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/app", s.app)
	mux.HandleFunc("/api/v1/queries", s.queries)
	mux.HandleFunc("/metrics", s.metrics)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.config.Logger.Info().Str("addr", ln.Addr().String()).Msg("diagnostics ui started")
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Logger.Error().Err(err).Msg("diagnostics ui stopped")
		}
	}()
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	<-s.done
	s.srv = nil
	return err
}

func (s *Server) app(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.config.App)
}

func (s *Server) queries(w http.ResponseWriter, _ *http.Request) {
	if s.config.Queries == nil {
		writeJSON(w, []interface{}{})
		return
	}
	writeJSON(w, s.config.Queries())
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.config.Metrics == nil {
		http.NotFound(w, r)
		return
	}
	data, err := s.config.Metrics(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, data)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
