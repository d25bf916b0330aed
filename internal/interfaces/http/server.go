package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sawpanic/firescore/internal/application"
	"github.com/sawpanic/firescore/internal/leaderboard"
	"github.com/sawpanic/firescore/internal/persistence"
	"github.com/sawpanic/firescore/internal/telemetry"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string          `yaml:"host" envconfig:"HOST" validate:"required"`
	Port           int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout   time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout    time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	RequestTimeout time.Duration   `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	MaxBodyBytes   int64           `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gt=0"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig is a token bucket shared by all clients
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1", // Local-only by default
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 20 * time.Second,
		MaxBodyBytes:   32 << 20,
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   40,
		},
	}
}

// LeaderboardReader is the read side of leaderboard.Board
type LeaderboardReader interface {
	Top(ctx context.Context, n int) ([]leaderboard.Entry, error)
	State() string
}

// Deps are the collaborators the handlers call. Leaderboard and Health are
// optional.
type Deps struct {
	Evaluator   *application.Evaluator
	Metrics     *telemetry.Metrics
	Leaderboard LeaderboardReader
	Health      persistence.RepositoryHealth
	Version     string
}

// Server represents the scoring HTTP server
type Server struct {
	router  *mux.Router
	server  *http.Server
	config  ServerConfig
	deps    Deps
	limiter *rate.Limiter
	started time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(config ServerConfig, deps Deps) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		config:  config,
		deps:    deps,
		started: time.Now(),
	}
	if config.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit.RPS), config.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/score", s.rateLimitMiddleware(http.HandlerFunc(s.handleScore))).Methods(http.MethodPost)
	s.router.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Interface("request_id", r.Context().Value(requestIDKey)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("REQ")
	})
}

// timeoutMiddleware enforces request timeouts
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware rejects requests beyond the token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// responseWrapper captures response status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
