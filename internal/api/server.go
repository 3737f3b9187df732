package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/afero"

	"github.com/kebairia/dbsnap/internal/database"
	"github.com/kebairia/dbsnap/internal/logger"
)

const (
	defaultServiceHost  = "localhost"
	defaultProbeTimeout = 3 * time.Second
	shutdownTimeout     = 10 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// Server exposes read-only game statistics and the archive listing over HTTP.
type Server struct {
	querier      database.Querier
	fs           afero.Fs
	backupsDir   string
	corsOrigins  []string
	services     map[string]int
	serviceHost  string
	probeTimeout time.Duration
	startedAt    time.Time
	now          func() time.Time
	log          logger.Logger
}

// NewServer returns a Server answering statistics queries through q.
func NewServer(q database.Querier, opts ...Option) *Server {
	s := &Server{
		querier:      q,
		fs:           afero.NewOsFs(),
		backupsDir:   "./backups",
		services:     map[string]int{"login": 6900, "char": 6121, "map": 5121},
		serviceHost:  defaultServiceHost,
		probeTimeout: defaultProbeTimeout,
		now:          time.Now,
		log:          logger.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// WithArchives points the /backups listing at dir on fsys.
func WithArchives(fsys afero.Fs, dir string) Option {
	return func(s *Server) {
		if fsys != nil {
			s.fs = fsys
		}
		if dir != "" {
			s.backupsDir = dir
		}
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithServices replaces the probed services, keyed by name.
func WithServices(services map[string]int) Option {
	return func(s *Server) {
		if len(services) > 0 {
			s.services = services
		}
	}
}

func WithServiceHost(host string) Option {
	return func(s *Server) {
		if host != "" {
			s.serviceHost = host
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/uptime", s.handleUptime)
	r.Get("/status", s.handleStatus)
	r.Get("/players", s.handlePlayers)
	r.Get("/stats", s.handleStats)
	r.Get("/backups", s.handleBackups)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.log.Info("api stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}
