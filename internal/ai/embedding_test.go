package ai_test

import (
	"testing"

	"github.com/chatwarden/warden/internal/ai"
	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, ai.CosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, ai.CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, ai.CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)

	// Scale invariance
	assert.InDelta(t, 1.0, ai.CosineSimilarity([]float64{1, 1}, []float64{5, 5}), 1e-9)
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, ai.CosineSimilarity(nil, nil))
	assert.Zero(t, ai.CosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Zero(t, ai.CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
}
