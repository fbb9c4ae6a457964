package ai

import (
	"context"
	"fmt"
	"math"

	"github.com/chatwarden/warden/internal/ai/client"
	"github.com/chatwarden/warden/internal/common/utils"
	"github.com/chatwarden/warden/internal/setup/config"
	"go.uber.org/zap"
)

// Embedder computes text embeddings for near-duplicate detection. Spam runs
// often repeat the same pitch with small edits; cosine similarity between an
// actor's recent messages catches what exact-match dedupe misses.
type Embedder struct {
	client *client.AIClient
	model  string
	logger *zap.Logger
}

// NewEmbedder creates an embedder using the configured embedding model.
func NewEmbedder(aiClient *client.AIClient, cfg *config.Classifier, logger *zap.Logger) *Embedder {
	return &Embedder{
		client: aiClient,
		model:  cfg.EmbeddingModel,
		logger: logger.Named("ai_embedder"),
	}
}

// Embed returns the embedding vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vector, err := utils.WithRetry(ctx, func() ([]float64, error) {
		return e.client.Embedding(ctx, e.model, text)
	}, utils.GetAIRetryOptions())
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	return vector, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either vector is empty or degenerate.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
