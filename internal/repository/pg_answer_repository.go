package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/research-answer-service/internal/domain"
)

// Compile-time interface verification.
var _ AnswerRepository = (*PgAnswerRepository)(nil)

const answerColumns = `id, question, mode, answer, query_word,
			citations, process_steps, duration_ms, created_at`

// PgAnswerRepository is a PostgreSQL implementation of AnswerRepository.
type PgAnswerRepository struct {
	db DBTX
}

// NewPgAnswerRepository creates a new PostgreSQL answer repository.
func NewPgAnswerRepository(db DBTX) *PgAnswerRepository {
	return &PgAnswerRepository{db: db}
}

// Save inserts an answer record. Missing IDs and timestamps are filled in.
func (r *PgAnswerRepository) Save(ctx context.Context, record *domain.AnswerRecord) error {
	if record == nil {
		return domain.NewValidationError("answer", "record cannot be nil")
	}
	if record.Question == "" {
		return domain.NewValidationError("question", "question is required")
	}

	citations := record.Citations
	if citations == nil {
		citations = []domain.CitationEntry{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	steps := record.ProcessSteps
	if steps == nil {
		steps = []string{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to marshal process steps: %w", err)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO answers (` + answerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		record.ID,
		record.Question,
		string(record.Mode),
		record.Answer,
		record.QueryWord,
		citationsJSON,
		stepsJSON,
		record.DurationMs,
		record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.NewAlreadyExistsError("answer", record.ID.String())
		}
		return fmt.Errorf("failed to insert answer: %w", err)
	}

	return nil
}

// Get retrieves an answer by ID.
func (r *PgAnswerRepository) Get(ctx context.Context, id uuid.UUID) (*domain.AnswerRecord, error) {
	query := `
		SELECT ` + answerColumns + `
		FROM answers
		WHERE id = $1`

	record, err := scanAnswer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("answer", id.String())
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	return record, nil
}

// List returns archived answers ordered by creation time, newest first.
func (r *PgAnswerRepository) List(ctx context.Context, filter AnswerFilter) ([]*domain.AnswerRecord, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	where := ""
	args := []any{}
	if filter.Mode != "" {
		where = "WHERE mode = $1"
		args = append(args, string(filter.Mode))
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM answers " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count answers: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT `+answerColumns+`
		FROM answers
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.AnswerRecord, 0, filter.Limit)
	for rows.Next() {
		record, err := scanAnswer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan answer: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating answers: %w", err)
	}

	return records, total, nil
}

// scanAnswer scans one answers row into a record.
func scanAnswer(row pgx.Row) (*domain.AnswerRecord, error) {
	var (
		record        domain.AnswerRecord
		mode          string
		citationsJSON []byte
		stepsJSON     []byte
	)

	err := row.Scan(
		&record.ID,
		&record.Question,
		&mode,
		&record.Answer,
		&record.QueryWord,
		&citationsJSON,
		&stepsJSON,
		&record.DurationMs,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Mode = domain.AnswerMode(mode)

	record.Citations = []domain.CitationEntry{}
	if len(citationsJSON) > 0 {
		if err := json.Unmarshal(citationsJSON, &record.Citations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
		}
	}
	record.ProcessSteps = []string{}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &record.ProcessSteps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal process steps: %w", err)
		}
	}

	return &record, nil
}
