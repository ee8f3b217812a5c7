package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/research-answer-service/internal/domain"
)

// AnswerFilter selects a page of archived answers, newest first.
type AnswerFilter struct {
	Mode   domain.AnswerMode
	Limit  int
	Offset int
}

// Validate checks the filter and applies pagination defaults.
func (f *AnswerFilter) Validate() error {
	switch f.Mode {
	case "", domain.AnswerModeDirect, domain.AnswerModeCited, domain.AnswerModeNoPapers:
	default:
		return domain.NewValidationError("mode", "unknown answer mode "+string(f.Mode))
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}

// AnswerRepository persists completed answers.
type AnswerRepository interface {
	// Save inserts a new answer record.
	Save(ctx context.Context, record *domain.AnswerRecord) error

	// Get returns the record with the given ID or a domain.NotFoundError.
	Get(ctx context.Context, id uuid.UUID) (*domain.AnswerRecord, error)

	// List returns a page of records and the total number matching the filter.
	List(ctx context.Context, filter AnswerFilter) ([]*domain.AnswerRecord, int64, error)
}
