package trace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorderSequenceIsMonotonicFromZero(t *testing.T) {
	t.Parallel()

	r := New()
	r.Log("start", "beginning", nil)
	r.Log("retrieve_complete", "done", map[string]any{"result_count": 2})
	r.Log("generated", "answer produced", nil)

	events := r.Events()
	require.Len(t, events, 3)
	for i, e := range events {
		require.Equal(t, i, e.Sequence)
	}
	require.Equal(t, "retrieve_complete", events[1].Step)
	require.Equal(t, 2, events[1].Details["result_count"])
}

func TestRecorderEventsReturnsCopy(t *testing.T) {
	t.Parallel()

	r := New()
	r.Log("start", "beginning", nil)
	events := r.Events()
	events[0].Step = "mutated"

	require.Equal(t, "start", r.Events()[0].Step)
}
