package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"schedimport/internal/config"
	appLog "schedimport/internal/log"
	"schedimport/internal/model"
	"schedimport/internal/pipeline"
)

// Server exposes the latest imported schedule over HTTP.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux
	hub *Hub

	mu        sync.RWMutex
	events    []model.Event
	runID     string
	updatedAt time.Time
}

// NewServer constructs a Server with an empty schedule.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		hub:    NewHub(),
		events: []model.Event{},
	}
	s.registerRoutes()
	return s
}

// Publish replaces the served schedule and notifies websocket clients.
func (s *Server) Publish(res pipeline.Result) {
	events := res.Events
	if events == nil {
		events = []model.Event{}
	}
	now := time.Now()

	s.mu.Lock()
	s.events = events
	s.runID = res.RunID
	s.updatedAt = now
	s.mu.Unlock()

	s.hub.Broadcast(Message{
		Type:      "schedule_updated",
		RunID:     res.RunID,
		Events:    len(events),
		Tasks:     res.Tasks,
		UpdatedAt: now,
	})
}

func (s *Server) snapshot() ([]model.Event, string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events, s.runID, s.updatedAt
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schedimport", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("GET /schedule.json", s.handleSchedule)
	s.mux.Handle("GET /ws", s.hub)
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleEvents returns the latest events as a JSON array. The run that
// produced them is reported in the X-Run-ID and Last-Modified headers.
//
// GET /api/events?source=a.ics&tasks_only=1
//   - source:     only events from this source_file
//   - tasks_only: only events that carry at least one task
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, runID, updatedAt := s.snapshot()

	q := r.URL.Query()
	source := q.Get("source")
	tasksOnly := parseBool(q.Get("tasks_only"))

	filtered := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if source != "" && ev.SourceFile != source {
			continue
		}
		if tasksOnly && len(ev.Tasks) == 0 {
			continue
		}
		filtered = append(filtered, ev)
	}

	if runID != "" {
		w.Header().Set("X-Run-ID", runID)
		w.Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSON(w, http.StatusOK, filtered)
}

// taskDTO is a task flattened together with its event.
type taskDTO struct {
	model.Task
	EventUID     string      `json:"event_uid"`
	EventSummary string      `json:"event_summary"`
	Start        *model.When `json:"start,omitempty"`
}

// handleTasks returns open tasks across all events; ?all=1 includes
// completed ones.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	events, _, _ := s.snapshot()
	all := parseBool(r.URL.Query().Get("all"))

	out := make([]taskDTO, 0)
	for _, ev := range events {
		list := ev.Tasks
		if !all {
			list = ev.OpenTasks()
		}
		for _, t := range list {
			out = append(out, taskDTO{Task: t, EventUID: ev.UID, EventSummary: ev.Summary, Start: ev.Start})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSchedule serves the same bare array that is written to disk.
func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	events, _, _ := s.snapshot()
	writeJSON(w, http.StatusOK, events)
}

// staticFileServer serves the frontend directory from disk. /api/* never
// falls through to it.
func (s *Server) staticFileServer() http.Handler {
	dir := ""
	if s.cfg != nil {
		dir = s.cfg.FrontendDir
	}
	info, err := os.Stat(dir)
	if dir == "" || err != nil || !info.IsDir() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				http.Error(w, "frontend not available", http.StatusServiceUnavailable)
				return
			}
			http.NotFound(w, r)
		})
	}

	fileServer := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
