package ingest

import (
	"context"

	"github.com/chatwarden/warden/internal/ai"
	"github.com/chatwarden/warden/internal/database"
	"github.com/chatwarden/warden/internal/queue"
	"github.com/chatwarden/warden/internal/setup"
	"github.com/chatwarden/warden/internal/worker/core"
	"go.uber.org/zap"
)

// Worker summarizes decided events and marks them processed in the durable
// store, turning raw chat rows into an archive that audit review can skim.
type Worker struct {
	db         database.Client
	summarizer *ai.Summarizer
	loop       *core.Loop
	logger     *zap.Logger
}

// New creates a new ingest worker.
func New(app *setup.App, logger *zap.Logger) *Worker {
	reporter := core.NewStatusReporter(app.StatusClient, "ingest", logger)

	w := &Worker{
		db:         app.DB,
		summarizer: ai.NewSummarizer(app.AIClient, &app.Config.Common.Classifier, logger),
		logger:     logger.Named("ingest_worker"),
	}

	w.loop = core.NewLoop(
		app.Queue, reporter, queue.TopicIngest, "ingest",
		app.Config.Worker.BatchSize, w.handle, w.logger,
	)

	return w
}

// Start runs the worker until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	return w.loop.Run(ctx)
}

// handle summarizes one event and records it as processed. MarkProcessed is
// idempotent, so redeliveries simply rewrite the same summary.
func (w *Worker) handle(ctx context.Context, entry queue.Entry) error {
	var job queue.EnrichmentJob
	if err := entry.DecodePayload(&job); err != nil {
		w.logger.Error("Dropping malformed enrichment job",
			zap.String("entryID", entry.ID), zap.Error(err))

		return nil
	}

	summary := ""

	if job.Text != "" {
		var err error

		summary, err = w.summarizer.Summarize(ctx, job.Text)
		if err != nil {
			return err
		}
	}

	return w.db.Model().Event().MarkProcessed(ctx, job.EventID, summary)
}
