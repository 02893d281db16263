package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragarena/internal/ragengine/types"
)

// Postgres persists sessions, qa_records, and evaluations using JSONB
// columns for their complex fields, mirroring this codebase's other
// Postgres-backed stores.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, ensures the schema exists, and returns a
// ready Postgres store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			technique_names JSONB NOT NULL,
			document_ids JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS qa_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			query TEXT NOT NULL,
			technique_name TEXT NOT NULL,
			answer TEXT NOT NULL,
			retrieved_chunks_json JSONB NOT NULL,
			trace_json JSONB NOT NULL,
			error_kind TEXT,
			error_message TEXT,
			retrieval_time_ms BIGINT NOT NULL DEFAULT 0,
			generation_time_ms BIGINT NOT NULL DEFAULT 0,
			latency_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			qa_record_id TEXT NOT NULL REFERENCES qa_records(id),
			relevance DOUBLE PRECISION,
			faithfulness DOUBLE PRECISION,
			coherence DOUBLE PRECISION,
			fluency DOUBLE PRECISION,
			conciseness DOUBLE PRECISION,
			overall DOUBLE PRECISION,
			metadata JSONB,
			error_kind TEXT,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_qa_records_session_id ON qa_records(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_qa_record_id ON evaluations(qa_record_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

// WriteSession writes a session and every QARecord from its fan-out run in
// a single transaction, so a reader never observes a partially-written
// run.
func (s *Postgres) WriteSession(ctx context.Context, session types.Session, records []types.QARecord) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	techniqueNames, err := json.Marshal(session.TechniqueNames)
	if err != nil {
		return err
	}
	documentIDs, err := json.Marshal(session.DocumentIDs)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO sessions (id, query, technique_names, document_ids, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET query=EXCLUDED.query, technique_names=EXCLUDED.technique_names,
			document_ids=EXCLUDED.document_ids, created_at=EXCLUDED.created_at`,
		session.ID, session.Query, techniqueNames, documentIDs, session.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}

	for _, r := range records {
		chunks, mErr := json.Marshal(r.RetrievedChunks)
		if mErr != nil {
			err = mErr
			return err
		}
		tr, mErr := json.Marshal(r.Trace)
		if mErr != nil {
			err = mErr
			return err
		}
		if _, err = tx.Exec(ctx, `INSERT INTO qa_records
			(id, session_id, query, technique_name, answer, retrieved_chunks_json, trace_json, error_kind, error_message, retrieval_time_ms, generation_time_ms, latency_ms, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (id) DO UPDATE SET answer=EXCLUDED.answer, retrieved_chunks_json=EXCLUDED.retrieved_chunks_json,
				trace_json=EXCLUDED.trace_json, error_kind=EXCLUDED.error_kind, error_message=EXCLUDED.error_message,
				retrieval_time_ms=EXCLUDED.retrieval_time_ms, generation_time_ms=EXCLUDED.generation_time_ms,
				latency_ms=EXCLUDED.latency_ms`,
			r.ID, session.ID, r.Query, r.TechniqueName, r.Answer, chunks, tr, string(r.ErrorKind), r.ErrorMessage,
			r.RetrievalTimeMS, r.GenerationTimeMS, r.LatencyMS, r.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("store: insert qa_record %s: %w", r.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *Postgres) GetSession(ctx context.Context, sessionID string) (types.Session, []types.QARecord, error) {
	var session types.Session
	var techniqueNames, documentIDs []byte
	row := s.pool.QueryRow(ctx, `SELECT id, query, technique_names, document_ids, created_at FROM sessions WHERE id=$1`, sessionID)
	if err := row.Scan(&session.ID, &session.Query, &techniqueNames, &documentIDs, &session.CreatedAt); err != nil {
		return types.Session{}, nil, fmt.Errorf("store: get session: %w", err)
	}
	_ = json.Unmarshal(techniqueNames, &session.TechniqueNames)
	_ = json.Unmarshal(documentIDs, &session.DocumentIDs)

	rows, err := s.pool.Query(ctx, `SELECT id, session_id, query, technique_name, answer, retrieved_chunks_json, trace_json,
		COALESCE(error_kind,''), COALESCE(error_message,''), retrieval_time_ms, generation_time_ms, latency_ms, created_at
		FROM qa_records WHERE session_id=$1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return types.Session{}, nil, fmt.Errorf("store: list qa_records: %w", err)
	}
	defer rows.Close()

	var records []types.QARecord
	for rows.Next() {
		var r types.QARecord
		var chunks, tr []byte
		var errKind string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Query, &r.TechniqueName, &r.Answer, &chunks, &tr, &errKind, &r.ErrorMessage,
			&r.RetrievalTimeMS, &r.GenerationTimeMS, &r.LatencyMS, &r.CreatedAt); err != nil {
			return types.Session{}, nil, err
		}
		r.ErrorKind = types.ErrorKind(errKind)
		_ = json.Unmarshal(chunks, &r.RetrievedChunks)
		_ = json.Unmarshal(tr, &r.Trace)
		records = append(records, r)
	}
	return session, records, rows.Err()
}

func (s *Postgres) WriteEvaluations(ctx context.Context, scores []types.EvaluationScore) error {
	for _, sc := range scores {
		metadata, err := json.Marshal(sc.Metadata)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, `INSERT INTO evaluations
			(id, qa_record_id, relevance, faithfulness, coherence, fluency, conciseness, overall, metadata, error_kind, error_message, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET relevance=EXCLUDED.relevance, faithfulness=EXCLUDED.faithfulness,
				coherence=EXCLUDED.coherence, fluency=EXCLUDED.fluency, conciseness=EXCLUDED.conciseness,
				overall=EXCLUDED.overall, metadata=EXCLUDED.metadata, error_kind=EXCLUDED.error_kind,
				error_message=EXCLUDED.error_message`,
			sc.ID, sc.QARecordID, sc.Relevance, sc.Faithfulness, sc.Coherence, sc.Fluency, sc.Conciseness,
			sc.Overall, metadata, string(sc.ErrorKind), sc.ErrorMessage, sc.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("store: insert evaluation %s: %w", sc.ID, err)
		}
	}
	return nil
}

func (s *Postgres) ListEvaluations(ctx context.Context, qaRecordID string) ([]types.EvaluationScore, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, qa_record_id, relevance, faithfulness, coherence, fluency, conciseness,
		overall, metadata, COALESCE(error_kind,''), COALESCE(error_message,''), created_at
		FROM evaluations WHERE qa_record_id=$1 ORDER BY created_at ASC`, qaRecordID)
	if err != nil {
		return nil, fmt.Errorf("store: list evaluations: %w", err)
	}
	defer rows.Close()

	var out []types.EvaluationScore
	for rows.Next() {
		var sc types.EvaluationScore
		var metadata []byte
		var errKind string
		if err := rows.Scan(&sc.ID, &sc.QARecordID, &sc.Relevance, &sc.Faithfulness, &sc.Coherence, &sc.Fluency, &sc.Conciseness,
			&sc.Overall, &metadata, &errKind, &sc.ErrorMessage, &sc.CreatedAt); err != nil {
			return nil, err
		}
		sc.ErrorKind = types.ErrorKind(errKind)
		_ = json.Unmarshal(metadata, &sc.Metadata)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
