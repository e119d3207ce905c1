package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(16)
	v1, err := e.Embed(context.Background(), "river level anomaly")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "river level anomaly")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Len(t, v1, 16)
}

func TestHashEmbedder_DifferentTextDifferentVector(t *testing.T) {
	e := NewHashEmbedder(16)
	v1, _ := e.Embed(context.Background(), "river level anomaly")
	v2, _ := e.Embed(context.Background(), "completely different text")
	require.NotEqual(t, v1, v2)
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float64{1, 0, 0}
	require.InDelta(t, 1.0, cosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectorsScoreZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float64{0, 1}
	require.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-9)
}
