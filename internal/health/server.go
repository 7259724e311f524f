// Package health serves /health, /ready and /metrics on their own port so
// probes and scrapes never compete with update clients.
package health

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy  = "healthy"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// DefaultCheckTimeout bounds one /ready evaluation.
const DefaultCheckTimeout = 5 * time.Second

// Checker returns nil when its dependency is usable.
type Checker func(ctx context.Context) error

type ComponentStatus struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Response is the body of /health and /ready.
type Response struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components []ComponentStatus `json:"components,omitempty"`
}

type Server struct {
	version string
	timeout time.Duration
	logger  *slog.Logger
	mux     *http.ServeMux
	srv     *http.Server

	mu       sync.RWMutex
	checkers map[string]Checker
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout bounds how long /ready waits for all checkers together.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithVersion is reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a server listening on port once ListenAndServe is called.
func New(port int, opts ...Option) *Server {
	s := &Server{
		timeout:  DefaultCheckTimeout,
		logger:   slog.Default(),
		mux:      http.NewServeMux(),
		checkers: map[string]Checker{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: StatusHealthy, Version: s.version})
	})
	s.mux.HandleFunc("GET /ready", s.ready)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// RegisterChecker adds or replaces the checker called name.
func (s *Server) RegisterChecker(name string, c Checker) {
	s.mu.Lock()
	s.checkers[name] = c
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler { return s.mux }

// ready runs every checker concurrently under one deadline and reports each
// result, sorted by name.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make(map[string]Checker, len(s.checkers))
	for name, c := range s.checkers {
		checkers[name] = c
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	var (
		mu         sync.Mutex
		components = make([]ComponentStatus, 0, len(checkers))
	)
	// Plain Group: one failing checker must not cancel the others.
	var g errgroup.Group
	for name, check := range checkers {
		g.Go(func() error {
			began := time.Now()
			err := check(ctx)
			st := ComponentStatus{Name: name, Healthy: err == nil, Duration: time.Since(began).Round(time.Millisecond).String()}
			if err != nil {
				st.Error = err.Error()
			}
			mu.Lock()
			components = append(components, st)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(components, func(a, b ComponentStatus) int { return cmp.Compare(a.Name, b.Name) })

	resp, code := Response{Status: StatusReady, Components: components}, http.StatusOK
	for _, c := range components {
		if c.Healthy {
			continue
		}
		s.logger.Warn("readiness check failed", slog.String("component", c.Name), slog.String("error", c.Error))
		resp.Status, code = StatusNotReady, http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("health server listening", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
