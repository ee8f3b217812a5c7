// Package domain provides domain models and errors for the research answer service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a state of the answer pipeline.
type Stage string

const (
	StageEvaluating       Stage = "evaluating"
	StageGeneratingDirect Stage = "generating_direct"
	StageRetrieving       Stage = "retrieving"
	StageFiltering        Stage = "filtering"
	StageAnalyzing        Stage = "analyzing"
	StageGeneratingCited  Stage = "generating_cited"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// CitationEntry is a paper record together with its short citation key.
type CitationEntry struct {
	PaperRecord
	CitationKey string `json:"citationKey"`
}

// CitationMapping maps a citation key to the metadata shown next to an answer.
type CitationMapping struct {
	Key     string     `json:"key"`
	Title   string     `json:"title"`
	Authors []string   `json:"authors"`
	Year    string     `json:"year"`
	Link    string     `json:"link"`
	Source  SourceType `json:"source"`
}

// AnswerMode tells how an answer was produced.
type AnswerMode string

const (
	AnswerModeDirect   AnswerMode = "direct"
	AnswerModeCited    AnswerMode = "cited"
	AnswerModeNoPapers AnswerMode = "no_papers"
)

// Result is the full payload of a completed question.
type Result struct {
	Answer          string            `json:"answer"`
	Citations       []CitationEntry   `json:"citations"`
	QueryWord       string            `json:"queryWord,omitempty"`
	PaperAnalysis   string            `json:"paperAnalysis,omitempty"`
	CitationMapping []CitationMapping `json:"citationMapping,omitempty"`
	ProcessSteps    []string          `json:"processSteps"`
	Note            string            `json:"note,omitempty"`
	Mode            AnswerMode        `json:"mode"`
}

// PipelineState is the transient state of one in-flight question.
// Only the orchestrator mutates it.
type PipelineState struct {
	Question            string
	Stage               Stage
	QueryWord           string
	Citations           []CitationEntry
	AccumulatedAnalysis string
	AccumulatedAnswer   string
	ProcessSteps        []string
	StartedAt           time.Time
}

// NewPipelineState creates the state for a freshly received question.
func NewPipelineState(question string) *PipelineState {
	return &PipelineState{
		Question:     question,
		Stage:        StageEvaluating,
		ProcessSteps: []string{},
		StartedAt:    time.Now(),
	}
}

// Advance moves the state to the given stage and records a process step label.
func (s *PipelineState) Advance(stage Stage, step string) {
	s.Stage = stage
	if step != "" {
		s.ProcessSteps = append(s.ProcessSteps, step)
	}
}

// AnswerRecord is the archived form of a completed question.
type AnswerRecord struct {
	ID           uuid.UUID       `json:"id"`
	Question     string          `json:"question"`
	Mode         AnswerMode      `json:"mode"`
	Answer       string          `json:"answer"`
	QueryWord    string          `json:"queryWord,omitempty"`
	Citations    []CitationEntry `json:"citations"`
	ProcessSteps []string        `json:"processSteps"`
	DurationMs   int64           `json:"durationMs"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewAnswerRecord builds an archive record from a pipeline result.
func NewAnswerRecord(question string, result *Result, duration time.Duration) *AnswerRecord {
	citations := result.Citations
	if citations == nil {
		citations = []CitationEntry{}
	}
	steps := result.ProcessSteps
	if steps == nil {
		steps = []string{}
	}
	return &AnswerRecord{
		ID:           uuid.New(),
		Question:     question,
		Mode:         result.Mode,
		Answer:       result.Answer,
		QueryWord:    result.QueryWord,
		Citations:    citations,
		ProcessSteps: steps,
		DurationMs:   duration.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
}
