package httpserver

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/repository"
)

// Pagination constants.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// listAnswers handles GET /answers.
func (s *Server) listAnswers(w http.ResponseWriter, r *http.Request) {
	if s.answers == nil {
		writeError(w, http.StatusNotFound, "answer archive is disabled")
		return
	}

	limit, offset := parsePaginationParams(r)
	filter := repository.AnswerFilter{
		Mode:   domain.AnswerMode(r.URL.Query().Get("mode")),
		Limit:  limit,
		Offset: offset,
	}

	records, total, err := s.answers.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list answers")
		writeDomainError(w, err)
		return
	}

	resp := listAnswersResponse{
		Answers:       make([]answerSummaryResponse, 0, len(records)),
		NextPageToken: encodeHTTPPageToken(offset, limit, int(total)),
		TotalCount:    int(total),
	}
	for _, rec := range records {
		resp.Answers = append(resp.Answers, domainAnswerToSummary(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getAnswer handles GET /answers/{answerID}.
func (s *Server) getAnswer(w http.ResponseWriter, r *http.Request) {
	if s.answers == nil {
		writeError(w, http.StatusNotFound, "answer archive is disabled")
		return
	}

	id, ok := parseUUID(w, chi.URLParam(r, "answerID"), "answer_id")
	if !ok {
		return
	}

	record, err := s.answers.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainAnswerToResponse(record))
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts limit and page_token from query parameters.
// It applies default and maximum bounds to the limit.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodeHTTPPageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodeHTTPPageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
