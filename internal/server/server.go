// Package server exposes a mirror over HTTP.
//
// The mirror root is served read-only in the layout gem clients expect
// (/gems/<artifact> plus the published index files), next to operational
// endpoints: /healthz, /status (the last cycle report, plus recent cycles
// when a history is configured) and /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/gemmirror/pkg/buildinfo"
	gmerrors "github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/index"
	"github.com/matzehuels/gemmirror/pkg/report"
	"github.com/matzehuels/gemmirror/pkg/storage"
)

// Limits of the ?history= parameter of /status.
const (
	DefaultHistory = 10
	MaxHistory     = 100
)

// History lists past cycle reports, newest first. [report.Mongo] implements it.
type History interface {
	Recent(ctx context.Context, n int64) ([]report.Stored, error)
}

// Config configures a [Server].
type Config struct {
	Addr    string
	Store   *storage.Store
	State   *State
	Metrics http.Handler // optional
	History History      // optional
	Logger  *log.Logger
}

// Server serves a mirror.
type Server struct {
	Addr   string
	router *chi.Mux
	server *http.Server
	store   *storage.Store
	state   *State
	history History
	logger  *log.Logger
}

// New creates a server. Nothing listens until [Server.Start].
func New(cfg Config) *Server {
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	s := &Server{
		Addr:   cfg.Addr,
		router: chi.NewRouter(),
		store:   cfg.Store,
		state:   cfg.State,
		history: cfg.History,
		logger:  cfg.Logger,
	}
	s.setupRoutes(cfg.Metrics)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.GetHead)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	if metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics)
	}

	s.router.Get("/gems/{name}", s.handleGem)
	for _, kind := range index.Kinds() {
		name := kind.CompressedFilename()
		s.router.Get("/"+name, func(w http.ResponseWriter, r *http.Request) {
			s.serveFile(w, r, name)
		})
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.Addr)
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Build buildinfo.Info `json:"build"`
	Snapshot
	History      []report.Stored `json:"history,omitempty"`
	HistoryError string          `json:"history_error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Build: buildinfo.Get(), Snapshot: s.state.Snapshot()}
	if s.history == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	n := int64(DefaultHistory)
	if v := r.URL.Query().Get("history"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "history must be a non-negative integer", http.StatusBadRequest)
			return
		}
		n = min(parsed, MaxHistory)
	}
	if n > 0 {
		recent, err := s.history.Recent(r.Context(), n)
		if err != nil {
			s.logger.Warn("report history unavailable", "err", err)
			resp.HistoryError = err.Error()
		}
		resp.History = recent
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := gmerrors.ValidateArtifactName(name); err != nil {
		http.Error(w, "invalid artifact name", http.StatusBadRequest)
		return
	}
	s.serveFile(w, r, storage.GemPath(name))
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, p string) {
	fi, err := s.store.FS().Stat(p)
	if err != nil || fi.IsDir() {
		if err != nil && !os.IsNotExist(err) {
			s.logger.Warn("stat failed", "path", p, "err", err)
		}
		http.NotFound(w, r)
		return
	}
	f, err := s.store.Open(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
