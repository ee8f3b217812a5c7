package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/observability"
	"github.com/helixir/research-answer-service/internal/pipeline"
)

const maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies

// askRequest is the JSON request body for asking a question.
type askRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	Stream   bool   `json:"stream"`
}

// askQuestion handles POST /questions.
// With stream=true the response is an event stream; otherwise the Result is
// returned once the pipeline finishes.
func (s *Server) askQuestion(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req askRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if err := s.validateRequest(&req); err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Stream {
		s.serveStream(w, r, req.Question)
		return
	}

	result, err := s.runner.Run(r.Context(), req.Question, pipeline.Discard)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// streamQuestion handles GET /questions/stream?question=... for EventSource clients.
func (s *Server) streamQuestion(w http.ResponseWriter, r *http.Request) {
	req := askRequest{Question: strings.TrimSpace(r.URL.Query().Get("question")), Stream: true}
	if err := s.validateRequest(&req); err != nil {
		writeDomainError(w, err)
		return
	}
	s.serveStream(w, r, req.Question)
}

// serveStream runs the pipeline with every event written as an SSE frame.
// Failures after the stream has started are reported in-band. When the run
// fails without a terminal frame, an error frame is written here.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, question string) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	emitter, ok := startSSE(w, cancel)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	logger := observability.LoggerFromContext(r.Context(), s.logger)
	if _, err := s.runner.Run(ctx, question, emitter); err != nil {
		if errors.Is(err, domain.ErrStreamTransport) {
			logger.Info().Err(err).Msg("event stream closed by client")
			return
		}
		logger.Debug().Err(err).Msg("question failed during event stream")
		if !emitter.terminated() {
			ev := domain.NewEvent(domain.EventError, domain.StageFailed)
			ev.Error = err.Error()
			_ = emitter.Emit(ctx, ev)
		}
	}
}

// validateRequest checks the request struct and maps failures to domain errors.
func (s *Server) validateRequest(req *askRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("request", err.Error())
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return domain.NewMissingInputError(strings.ToLower(fe.Field()))
	}
	if fe.Tag() == "max" {
		return domain.NewValidationError("question", "must be at most "+fe.Param()+" characters")
	}
	return domain.NewValidationError(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
}

// writePipelineError maps a failed non-streaming run to a JSON error response.
func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrMissingInput) || errors.Is(err, domain.ErrInvalidInput) {
		writeDomainError(w, err)
		return
	}

	resp := errorResponse{Error: err.Error()}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = string(stageErr.Stage)
		resp.Error = stageErr.Err.Error()
	}
	logger := observability.LoggerFromContext(r.Context(), s.logger)
	logger.Error().
		Err(err).
		Str("stage", resp.Stage).
		Msg("question failed")
	writeJSON(w, http.StatusInternalServerError, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrMissingInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
