package store

import (
	"context"
	"fmt"
	"sync"

	"ragarena/internal/ragengine/types"
)

// Memory is an in-process Store, used as the default backend and in
// tests. All mutation is guarded by a single mutex since a fan-out run's
// entire batch write is meant to be atomic.
type Memory struct {
	mu          sync.Mutex
	sessions    map[string]types.Session
	records     map[string][]types.QARecord // session ID -> records
	recordsByID map[string]types.QARecord
	evaluations map[string][]types.EvaluationScore // qa record ID -> scores
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]types.Session),
		records:     make(map[string][]types.QARecord),
		recordsByID: make(map[string]types.QARecord),
		evaluations: make(map[string][]types.EvaluationScore),
	}
}

func (m *Memory) WriteSession(ctx context.Context, session types.Session, records []types.QARecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = session
	stored := make([]types.QARecord, len(records))
	for i, r := range records {
		r.RetrievedChunks = types.CloneRetrievedChunks(r.RetrievedChunks)
		stored[i] = r
		m.recordsByID[r.ID] = r
	}
	m.records[session.ID] = stored
	return nil
}

func (m *Memory) GetSession(ctx context.Context, sessionID string) (types.Session, []types.QARecord, error) {
	if err := ctx.Err(); err != nil {
		return types.Session{}, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return types.Session{}, nil, fmt.Errorf("store: session %q not found", sessionID)
	}
	records := m.records[sessionID]
	out := make([]types.QARecord, len(records))
	copy(out, records)
	return session, out, nil
}

func (m *Memory) WriteEvaluations(ctx context.Context, scores []types.EvaluationScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range scores {
		m.evaluations[s.QARecordID] = append(m.evaluations[s.QARecordID], s)
	}
	return nil
}

func (m *Memory) ListEvaluations(ctx context.Context, qaRecordID string) ([]types.EvaluationScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	scores := m.evaluations[qaRecordID]
	out := make([]types.EvaluationScore, len(scores))
	copy(out, scores)
	return out, nil
}

func (m *Memory) Close() error { return nil }
