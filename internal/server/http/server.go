// Package httpserver provides the HTTP API of the research answer service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/pipeline"
	"github.com/helixir/research-answer-service/internal/repository"
)

// readinessTimeout bounds all readiness checks of one probe.
const readinessTimeout = 5 * time.Second

// QuestionRunner answers one question while streaming progress events.
type QuestionRunner interface {
	Run(ctx context.Context, question string, emitter pipeline.Emitter) (*domain.Result, error)
}

// AnswerReader reads archived answers.
type AnswerReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.AnswerRecord, error)
	List(ctx context.Context, filter repository.AnswerFilter) ([]*domain.AnswerRecord, int64, error)
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	runner      QuestionRunner
	answers     AnswerReader
	checks      []ReadinessCheck
	corsOrigins []string
	validate    *validator.Validate
	logger      zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	CORSAllowedOrigins []string
}

// Deps are the collaborators of the HTTP server.
// Answers may be nil when the archive is disabled.
type Deps struct {
	Runner  QuestionRunner
	Answers AnswerReader
	Checks  []ReadinessCheck
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		runner:      deps.Runner,
		answers:     deps.Answers,
		checks:      deps.Checks,
		corsOrigins: cfg.CORSAllowedOrigins,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(corsMiddleware(s.corsOrigins))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Post("/questions", s.askQuestion)
		r.Get("/questions/stream", s.streamQuestion)
		r.Get("/answers", s.listAnswers)
		r.Get("/answers/{answerID}", s.getAnswer)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler probes every configured dependency.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := map[string]string{"status": "ready"}
	code := http.StatusOK
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("dependency", c.Name).Msg("readiness check failed")
			status[c.Name] = "unhealthy"
			status["status"] = "not_ready"
			code = http.StatusServiceUnavailable
			continue
		}
		status[c.Name] = "healthy"
	}
	writeJSON(w, code, status)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful can be done with an encode error.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}
