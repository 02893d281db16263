package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/types"
)

func TestMemoryWriteSessionRoundTripsEqual(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	session := types.Session{
		ID:             "s1",
		Query:          "What is the capital of France?",
		TechniqueNames: []string{"baseline", "fusion"},
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	records := []types.QARecord{
		{
			ID:            "r1",
			SessionID:     "s1",
			Query:         session.Query,
			TechniqueName: "baseline",
			Answer:        "Paris.",
			RetrievedChunks: []types.RetrievedChunk{
				{Chunk: types.Chunk{ID: "c1", Text: "Paris is the capital of France."}, Score: 0.9, Method: "vector", Rank: 1},
			},
			CreatedAt: session.CreatedAt,
		},
	}

	require.NoError(t, m.WriteSession(context.Background(), session, records))

	gotSession, gotRecords, err := m.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, session, gotSession)
	require.Equal(t, records, gotRecords)
}

func TestMemoryGetSessionNotFound(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	_, _, err := m.GetSession(context.Background(), "missing")
	require.Error(t, err)
}

func TestMemoryWriteEvaluationsAccumulatesPerRecord(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	relevance := 0.8
	require.NoError(t, m.WriteEvaluations(context.Background(), []types.EvaluationScore{
		{ID: "e1", QARecordID: "r1", Relevance: &relevance},
		{ID: "e2", QARecordID: "r1", Metadata: map[string]any{"reference_scores.faithfulness": 0.5}},
	}))

	scores, err := m.ListEvaluations(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, scores, 2)
}
