// Package repository provides data access for archived answers.
//
// Implementations accept DBTX so they can run against a pool, a transaction
// or pgxmock in tests. Lookups of unknown IDs return domain.NotFoundError.
//
//	db, _ := database.New(ctx, &cfg.Database, logger)
//	answers := repository.NewPgAnswerRepository(db)
package repository

import (
	"github.com/helixir/research-answer-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 20
	maxFilterLimit     = 100
)

// applyPaginationDefaults normalizes limit and offset values for filter queries.
// It clamps limit to [1, maxFilterLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
