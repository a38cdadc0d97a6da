// Package api serves the admin HTTP API: health, draft inspection, recent
// logs and metrics. In HTTP mode it also hosts the Slack endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/h1v3-io/ticketbot/internal/draft"
	"github.com/h1v3-io/ticketbot/internal/logbuf"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// LogQuerier abstracts log entry querying.
type LogQuerier interface {
	Query(q logbuf.Query) []logbuf.Entry
}

// DraftStore is the part of the draft store the API reads and deletes from.
type DraftStore interface {
	Get(key string) (*protocol.Draft, error)
	Delete(key string) error
	List(filter draft.Filter) ([]*protocol.Draft, error)
}

// Mounter registers extra routes that do their own authentication, such as
// the Slack request URLs.
type Mounter interface {
	Register(mux *http.ServeMux)
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Deps are the data sources behind the API. Logs, Metrics and Slack are
// optional.
type Deps struct {
	Drafts  DraftStore
	Logs    LogQuerier
	Metrics http.Handler
	Slack   Mounter
	// Ingress names the active Slack connector, reported by health.
	Ingress string
}

// Server is the ticketbot admin API server.
type Server struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	srv     *http.Server
	started time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("component", "api"),
		started: time.Now(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/drafts", s.requireAuth(s.handleListDrafts))
	mux.HandleFunc("GET /api/drafts/{key}", s.requireAuth(s.handleGetDraft))
	mux.HandleFunc("DELETE /api/drafts/{key}", s.requireAuth(s.handleDeleteDraft))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}
	if deps.Slack != nil {
		deps.Slack.Register(mux)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Ingress string `json:"ingress,omitempty"`
	Uptime  string `json:"uptime"`
	Pending int    `json:"pending_drafts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Ingress: s.deps.Ingress,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	pending, err := s.deps.Drafts.List(draft.Filter{Status: draft.StatusPtr(protocol.DraftPending)})
	if err != nil {
		s.logger.Error("health: draft store unavailable", "error", err)
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Pending = len(pending)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := draft.Filter{UserID: q.Get("user")}
	if status := q.Get("status"); status != "" {
		st := protocol.DraftStatus(status)
		if !st.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + strconv.Quote(status)})
			return
		}
		filter.Status = &st
	}
	if mode := q.Get("mode"); mode != "" {
		filter.Mode = protocol.Mode(mode)
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}

	drafts, err := s.deps.Drafts.List(filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if drafts == nil {
		drafts = []*protocol.Draft{}
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Drafts.Get(r.PathValue("key"))
	if errors.Is(err, draft.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "draft not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	d, err := s.deps.Drafts.Get(key)
	if errors.Is(err, draft.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "draft not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if d.Status == protocol.DraftCreating {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "draft is being created"})
		return
	}
	if err := s.deps.Drafts.Delete(key); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info("draft deleted via api", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	params := r.URL.Query()
	q := logbuf.Query{
		MinLevel:  slog.LevelDebug,
		Limit:     200,
		Component: params.Get("component"),
		Key:       params.Get("key"),
		Contains:  params.Get("q"),
	}
	if l := params.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if lvl := params.Get("level"); lvl != "" {
		if parsed, ok := logbuf.ParseLevel(lvl); ok {
			q.MinLevel = parsed
		}
	}
	if since := params.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			q.Since = time.UnixMilli(ms)
		}
	}

	entries := s.deps.Logs.Query(q)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
