package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneRetrievedChunksDeepCopiesMetadata(t *testing.T) {
	t.Parallel()

	src := []RetrievedChunk{
		{Chunk: Chunk{ID: "c1", Metadata: map[string]string{"section": "intro"}}, Score: 0.9},
	}
	clone := CloneRetrievedChunks(src)
	clone[0].Metadata["section"] = "mutated"
	clone[0].Score = 0.1

	require.Equal(t, "intro", src[0].Metadata["section"])
	require.Equal(t, 0.9, src[0].Score)
}

func TestCloneRetrievedChunksNil(t *testing.T) {
	t.Parallel()
	require.Nil(t, CloneRetrievedChunks(nil))
}

func TestCloneMetadataShallowCopy(t *testing.T) {
	t.Parallel()

	src := map[string]any{"reference_scores.faithfulness": 0.5}
	clone := CloneMetadata(src)
	clone["reference_scores.faithfulness"] = 1.0

	require.Equal(t, 0.5, src["reference_scores.faithfulness"])
	require.Nil(t, CloneMetadata(nil))
}
