// Package web serves the browser dashboard and its control API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/verte-zerg/biomine/internal/model"
	"github.com/verte-zerg/biomine/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Controller is the subset of the session controller exposed over HTTP.
type Controller interface {
	Start() bool
	Stop() bool
	Reset() model.Snapshot
	Snapshot() model.Snapshot
}

// Event is the payload of every server-sent event.
type Event struct {
	Type     string         `json:"type"`
	Record   *model.Record  `json:"record,omitempty"`
	Snapshot model.Snapshot `json:"snapshot"`
}

type controlResponse struct {
	Changed  bool           `json:"changed"`
	Snapshot model.Snapshot `json:"snapshot"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes a Controller to browsers. It also implements
// session.Display so ticks are streamed to connected pages.
type Server struct {
	ctrl   Controller
	logger *slog.Logger
	hub    *hub
	router *mux.Router
}

// NewServer builds the router for ctrl.
func NewServer(ctrl Controller, logger *slog.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		logger: logger,
		hub:    newHub(),
		router: mux.NewRouter(),
	}
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.state).Methods(http.MethodGet)
	api.HandleFunc("/start", s.start).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.stop).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.reset).Methods(http.MethodPost)
	api.HandleFunc("/events", s.events).Methods(http.MethodGet)
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	s.router.PathPrefix("/").Handler(assetHandler()).Methods(http.MethodGet, http.MethodHead)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Show implements session.Display. Ticks from a run that has since been
// reset are dropped.
func (s *Server) Show(u session.Update) {
	if u.Snapshot.RunID != s.ctrl.Snapshot().RunID {
		return
	}
	rec := u.Record
	s.broadcast(Event{Type: "tick", Record: &rec, Snapshot: u.Snapshot})
}

func (s *Server) broadcast(ev Event) {
	if s.hub.count() == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode event", "type", ev.Type, "err", err)
		return
	}
	s.hub.publish(data)
}

// ListenAndServe serves on addr until ctx is cancelled. onReady receives the
// dashboard URL once the listener is bound.
func (s *Server) ListenAndServe(ctx context.Context, addr string, onReady func(url string)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	url := fmt.Sprintf("http://%s/", listener.Addr().String())
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("dashboard listening", "url", url)
	if onReady != nil {
		onReady(url)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dashboard: %w", err)
	}
	return nil
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) start(w http.ResponseWriter, _ *http.Request) {
	changed := s.ctrl.Start()
	s.control(w, "start", changed, s.ctrl.Snapshot())
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	changed := s.ctrl.Stop()
	s.control(w, "stop", changed, s.ctrl.Snapshot())
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	snap := s.ctrl.Reset()
	s.control(w, "reset", true, snap)
}

func (s *Server) control(w http.ResponseWriter, action string, changed bool, snap model.Snapshot) {
	if changed {
		s.broadcast(Event{Type: action, Snapshot: snap})
	}
	writeJSON(w, http.StatusOK, controlResponse{Changed: changed, Snapshot: snap})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}
	ch, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				s.logger.Debug("event stream closed", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
