// Package http serves the read-only monitor API: health, persisted sweep
// results, cached bundles, on-demand prediction, Prometheus metrics, and a
// websocket feed of live training progress.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// ServerConfig holds monitor server configuration.
type ServerConfig struct {
	Host                string  `json:"host" yaml:"host"`                                   // Bind address (default: 127.0.0.1, local-only)
	Port                int     `json:"port" yaml:"port"`                                   // Listen port (default: 8087)
	ReadTimeoutSeconds  int     `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`   // Per-request read timeout
	WriteTimeoutSeconds int     `json:"write_timeout_seconds" yaml:"write_timeout_seconds"` // Per-request write timeout
	IdleTimeoutSeconds  int     `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`   // Keep-alive idle timeout
	RateLimit           float64 `json:"rate_limit" yaml:"rate_limit"`                       // Requests per second across all clients
	RateBurst           int     `json:"rate_burst" yaml:"rate_burst"`                       // Burst size for the limiter
}

// DefaultServerConfig returns a local-only monitor configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                "127.0.0.1",
		Port:                8087,
		ReadTimeoutSeconds:  10,
		WriteTimeoutSeconds: 10,
		IdleTimeoutSeconds:  60,
		RateLimit:           50,
		RateBurst:           100,
	}
}

// Validate checks the server configuration.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in (0, 65535], got %d", c.Port)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %g", c.RateLimit)
	}
	return nil
}

// Server is the monitor HTTP server. All endpoints are read-only except
// /api/v1/predict, which evaluates a cached bundle without mutating it.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	metrics  *Metrics
	hub      *ProgressHub
	limiter  *rate.Limiter
	config   ServerConfig
	log      zerolog.Logger
}

// NewServer wires routes, middleware, and handlers. The port is probed
// up front so a busy port fails at construction rather than at Start.
func NewServer(cfg ServerConfig, h *Handlers, m *Metrics, hub *ProgressHub, log zerolog.Logger) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		metrics:  m,
		hub:      hub,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		config:   cfg,
		log:      log.With().Str("component", "monitor").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/ws/progress", s.hub.Serve)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/functions", s.handlers.Functions).Methods("GET")
	api.HandleFunc("/results/{function}", s.handlers.Results).Methods("GET")
	api.HandleFunc("/bundles/{id}", s.handlers.Bundle).Methods("GET")
	api.HandleFunc("/predict", s.handlers.Predict).Methods("POST")
	api.HandleFunc("/summary", s.metrics.SummaryHandler).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// requestIDMiddleware tags every request with a short unique ID.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("monitor server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("monitor server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("monitor server shutting down")
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// responseWrapper captures the status code for access logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
