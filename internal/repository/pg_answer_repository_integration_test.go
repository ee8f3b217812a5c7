//go:build integration

package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/research-answer-service/internal/config"
	"github.com/helixir/research-answer-service/internal/database"
	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/repository"
)

// startPostgres runs a disposable PostgreSQL container with the archive
// schema applied.
func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("answers_test"),
		tcpostgres.WithUsername("answers"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := database.New(ctx, &config.DatabaseConfig{
		Enabled:        true,
		Host:           host,
		Port:           port.Int(),
		User:           "answers",
		Password:       "testpassword",
		Name:           "answers_test",
		SSLMode:        "disable",
		MaxConns:       4,
		MinConns:       1,
		ConnectTimeout: 10 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, file, _, _ := runtime.Caller(0)
	migrator, err := database.NewMigrator(db, filepath.Join(filepath.Dir(file), "..", "..", "migrations"), zerolog.Nop())
	require.NoError(t, err)
	defer migrator.Close()
	require.NoError(t, migrator.Up())

	return db
}

func TestPgAnswerRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := startPostgres(t)
	repo := repository.NewPgAnswerRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cited := &domain.AnswerRecord{
		ID:        uuid.New(),
		Question:  "Does exercise improve sleep quality?",
		Mode:      domain.AnswerModeCited,
		Answer:    "Moderate exercise improves sleep quality [Kredlow2015].",
		QueryWord: "exercise sleep quality",
		Citations: []domain.CitationEntry{{
			PaperRecord: domain.PaperRecord{
				ID:      "pm-1",
				Title:   "The effects of physical activity on sleep",
				Authors: []string{"M. Alexandra Kredlow"},
				Year:    "2015",
				Source:  domain.SourceTypePubMed,
			},
			CitationKey: "Kredlow2015",
		}},
		ProcessSteps: []string{"Evaluated whether the question needs research"},
		DurationMs:   3100,
		CreatedAt:    base,
	}
	direct := &domain.AnswerRecord{
		ID:        uuid.New(),
		Question:  "What is 2+2?",
		Mode:      domain.AnswerModeDirect,
		Answer:    "4",
		CreatedAt: base.Add(time.Minute),
	}

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, cited))
		require.NoError(t, repo.Save(ctx, direct))

		got, err := repo.Get(ctx, cited.ID)
		require.NoError(t, err)
		assert.Equal(t, cited.Question, got.Question)
		assert.Equal(t, cited.Citations, got.Citations)
		assert.True(t, cited.CreatedAt.Equal(got.CreatedAt))

		got, err = repo.Get(ctx, direct.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Citations)
		assert.NotNil(t, got.ProcessSteps)
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := repo.Save(ctx, cited)
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.New())
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("list newest first", func(t *testing.T) {
		answers, total, err := repo.List(ctx, repository.AnswerFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, answers, 2)
		assert.Equal(t, direct.ID, answers[0].ID)

		answers, total, err = repo.List(ctx, repository.AnswerFilter{Mode: domain.AnswerModeCited})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, answers, 1)
		assert.Equal(t, cited.ID, answers[0].ID)
	})
}
