package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coind/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// HealthFunc reports whether the node is healthy.
type HealthFunc func(ctx context.Context) error

// Server serves /metrics and /healthz over HTTP.
type Server struct {
	logger   *slog.Logger
	listener net.Listener
	http     *http.Server
}

// NewRouter builds the HTTP routes.
func NewRouter(m *Metrics, health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	if reg := m.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if health != nil {
			if err := health(req.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body = map[string]string{"status": "unhealthy", "error": err.Error()}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}

// Listen binds addr. Serve must be called to start handling requests.
func Listen(addr string, m *Metrics, health HealthFunc, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind metrics endpoint %s: %w", addr, err)
	}
	return &Server{
		logger:   logging.NewComponentLogger(logger, "metrics"),
		listener: listener,
		http: &http.Server{
			Handler:           NewRouter(m, health),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve blocks until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("metrics endpoint listening", logging.String("address", s.Addr()))
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics endpoint: %w", err)
	}
	return nil
}

// Close shuts the endpoint down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	// Shutdown only closes listeners Serve has taken over.
	_ = s.listener.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
