// Package store implements ragarena's Persistence Layer: sessions,
// qa_records, and evaluations, with an in-memory backend for tests and a
// Postgres-backed implementation for production use.
package store

import (
	"context"

	"ragarena/internal/ragengine/types"
)

// Store is the C12 contract. WriteSession persists a session along with
// every QARecord produced by its fan-out run in a single transaction, so a
// reader never observes a session with only some of its records written.
type Store interface {
	WriteSession(ctx context.Context, session types.Session, records []types.QARecord) error
	GetSession(ctx context.Context, sessionID string) (types.Session, []types.QARecord, error)
	WriteEvaluations(ctx context.Context, scores []types.EvaluationScore) error
	ListEvaluations(ctx context.Context, qaRecordID string) ([]types.EvaluationScore, error)
	Close() error
}
