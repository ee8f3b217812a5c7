package httpserver

import (
	"time"

	"github.com/helixir/research-answer-service/internal/citation"
	"github.com/helixir/research-answer-service/internal/domain"
)

// errorResponse is the body of every error reply. Stage is set when a
// question failed inside the pipeline.
type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type answerSummaryResponse struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Mode          string    `json:"mode"`
	QueryWord     string    `json:"queryWord,omitempty"`
	CitationCount int       `json:"citationCount"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

type listAnswersResponse struct {
	Answers       []answerSummaryResponse `json:"answers"`
	NextPageToken string                  `json:"nextPageToken,omitempty"`
	TotalCount    int                     `json:"totalCount"`
}

type answerResponse struct {
	ID              string                   `json:"id"`
	Question        string                   `json:"question"`
	Mode            string                   `json:"mode"`
	Answer          string                   `json:"answer"`
	QueryWord       string                   `json:"queryWord,omitempty"`
	Citations       []domain.CitationEntry   `json:"citations"`
	CitationMapping []domain.CitationMapping `json:"citationMapping"`
	ProcessSteps    []string                 `json:"processSteps"`
	DurationMs      int64                    `json:"durationMs"`
	CreatedAt       time.Time                `json:"createdAt"`
}

// Converter functions

func domainAnswerToSummary(a *domain.AnswerRecord) answerSummaryResponse {
	return answerSummaryResponse{
		ID:            a.ID.String(),
		Question:      a.Question,
		Mode:          string(a.Mode),
		QueryWord:     a.QueryWord,
		CitationCount: len(a.Citations),
		DurationMs:    a.DurationMs,
		CreatedAt:     a.CreatedAt,
	}
}

func domainAnswerToResponse(a *domain.AnswerRecord) answerResponse {
	return answerResponse{
		ID:              a.ID.String(),
		Question:        a.Question,
		Mode:            string(a.Mode),
		Answer:          a.Answer,
		QueryWord:       a.QueryWord,
		Citations:       a.Citations,
		CitationMapping: citation.Mapping(a.Citations),
		ProcessSteps:    a.ProcessSteps,
		DurationMs:      a.DurationMs,
		CreatedAt:       a.CreatedAt,
	}
}
