package evaldispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/types"
)

type stubEvaluator struct {
	failFor map[string]bool
}

func (s *stubEvaluator) Evaluate(ctx context.Context, record types.QARecord) (types.EvaluationScore, error) {
	if s.failFor[record.ID] {
		return types.EvaluationScore{}, fmt.Errorf("stub: forced failure for %s", record.ID)
	}
	return types.EvaluationScore{QARecordID: record.ID}, nil
}

func TestDispatcherIsolatesFailurePerRecordAndTrack(t *testing.T) {
	t.Parallel()

	dimensional := &stubEvaluator{failFor: map[string]bool{"r1": true}}
	reference := &stubEvaluator{}

	disp := New(dimensional, reference, 2, nil)
	results, err := disp.Run(context.Background(), []types.QARecord{{ID: "r1"}, {ID: "r2"}})
	require.NoError(t, err)
	require.Len(t, results, 2)

	var byID = map[string]Result{}
	for _, r := range results {
		byID[r.QARecordID] = r
	}

	require.Nil(t, byID["r1"].Dimensional)
	require.NotNil(t, byID["r1"].Reference)
	require.NotNil(t, byID["r2"].Dimensional)
	require.NotNil(t, byID["r2"].Reference)
}

func TestDispatcherEmptyRecordsReturnsEmptyResults(t *testing.T) {
	t.Parallel()

	disp := New(&stubEvaluator{}, &stubEvaluator{}, 2, nil)
	results, err := disp.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}
