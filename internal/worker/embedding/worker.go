package embedding

import (
	"context"
	"errors"

	"github.com/chatwarden/warden/internal/ai"
	"github.com/chatwarden/warden/internal/cache"
	"github.com/chatwarden/warden/internal/queue"
	"github.com/chatwarden/warden/internal/setup"
	"github.com/chatwarden/warden/internal/worker/core"
	"go.uber.org/zap"
)

// duplicateThreshold is the cosine similarity above which two messages are
// treated as near-duplicates.
const duplicateThreshold = 0.92

// Worker embeds decided events and maintains each actor's recent-embeddings
// window so repeated near-identical spam is visible across message edits.
type Worker struct {
	cache    *cache.Cache
	embedder *ai.Embedder
	loop     *core.Loop
	logger   *zap.Logger
}

// New creates a new embedding worker.
func New(app *setup.App, logger *zap.Logger) *Worker {
	reporter := core.NewStatusReporter(app.StatusClient, "embedding", logger)

	w := &Worker{
		cache:    app.Cache,
		embedder: ai.NewEmbedder(app.AIClient, &app.Config.Common.Classifier, logger),
		logger:   logger.Named("embedding_worker"),
	}

	w.loop = core.NewLoop(
		app.Queue, reporter, queue.TopicEmbeddings, "embedding",
		app.Config.Worker.BatchSize, w.handle, w.logger,
	)

	return w
}

// Start runs the worker until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	return w.loop.Run(ctx)
}

// handle embeds one event and flags near-duplicates against the actor's
// recent messages. Redeliveries are harmless: the embedding append is
// idempotent by event id.
func (w *Worker) handle(ctx context.Context, entry queue.Entry) error {
	var job queue.EnrichmentJob
	if err := entry.DecodePayload(&job); err != nil {
		// Malformed payloads never become valid; ack and move on.
		w.logger.Error("Dropping malformed enrichment job",
			zap.String("entryID", entry.ID), zap.Error(err))

		return nil
	}

	if job.Text == "" {
		return nil
	}

	vector, err := w.embedder.Embed(ctx, job.Text)
	if err != nil {
		return err
	}

	recent, err := w.cache.ActorEmbeddings(ctx, job.ActorID)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}

	var (
		maxSimilarity float64
		matchEventID  string
	)

	for _, e := range recent {
		if e.EventID == job.EventID {
			continue
		}

		if sim := ai.CosineSimilarity(vector, e.Vector); sim > maxSimilarity {
			maxSimilarity = sim
			matchEventID = e.EventID
		}
	}

	if maxSimilarity >= duplicateThreshold {
		w.logger.Warn("Near-duplicate message detected",
			zap.Uint64("actorID", job.ActorID),
			zap.String("eventID", job.EventID),
			zap.String("matchEventID", matchEventID),
			zap.Float64("similarity", maxSimilarity))
	}

	return w.cache.AppendActorEmbedding(ctx, job.ActorID, &cache.EventEmbedding{
		EventID: job.EventID,
		Vector:  vector,
	})
}
