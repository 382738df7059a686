package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/metrics"
)

// RouteRegistrar defines the interface for components that register routes
// with the server's router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Pinger reports whether a backing dependency is usable.
type Pinger interface {
	Ping() error
}

// ServerConfig contains the HTTP server parameters.
type ServerConfig struct {
	// ListenAddr is the address and port the HTTP server listens on.
	ListenAddr string

	// AllowedOrigins lists the browser origins allowed by CORS.
	AllowedOrigins []string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout must exceed the longest poll wait.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds the wait for in-flight requests on shutdown.
	ShutdownTimeout time.Duration

	// EnableMetrics serves /metrics from the same listener.
	EnableMetrics bool
}

// Server is the relay's HTTP server.
type Server struct {
	cfg     ServerConfig
	log     *logging.Logger
	metrics *metrics.Metrics
	ready   Pinger
	isReady atomic.Bool

	srv *http.Server
}

// NewServer builds a Server with the given route registrars. ready may be nil.
func NewServer(
	cfg ServerConfig,
	log *logging.Logger,
	m *metrics.Metrics,
	ready Pinger,
	registrars ...RouteRegistrar,
) *Server {
	s := &Server{cfg: cfg, log: log, metrics: m, ready: ready}
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router(registrars),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.isReady.Store(true)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) router(registrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(s.requestLogger)
	mux.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", FinalizeTokenHeader},
		MaxAge:         300,
	}))

	for _, r := range registrars {
		r.RegisterRoutes(mux)
	}

	mux.Get("/livez", s.handleLiveness)
	mux.Get("/readyz", s.handleReadiness)
	if s.cfg.EnableMetrics && s.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return mux
}

// requestLogger writes one line per request through go-logging.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debugf("%s %s %d %dB %s [%s]", r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(),
				time.Since(start).Round(time.Millisecond), middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	if s.ready != nil {
		if err := s.ready.Ping(); err != nil {
			s.log.Warningf("readiness check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RunInBackground starts serving in a new goroutine. The returned channel
// receives the listener error, if any, and is closed when serving stops.
func (s *Server) RunInBackground() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.log.Noticef("listening on %s", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server failed: %v", err)
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *Server) Shutdown() {
	s.isReady.Store(false)
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Errorf("graceful HTTP shutdown failed: %v", err)
		return
	}
	s.log.Notice("HTTP server stopped")
}
