package cleanup

import (
	"context"
	"time"

	"github.com/chatwarden/warden/internal/database"
	"github.com/chatwarden/warden/internal/queue"
	"github.com/chatwarden/warden/internal/setup"
	"github.com/chatwarden/warden/internal/worker/core"
	"go.uber.org/zap"
)

// defaultRetentionDays bounds event and audit retention when a sweep job does
// not specify its own horizon.
const defaultRetentionDays = 30

// Worker applies the retention policy: events and decision audits older than
// the horizon are purged from the durable store. Cache windows expire on
// their own TTLs and need no sweeping.
type Worker struct {
	db     database.Client
	loop   *core.Loop
	logger *zap.Logger
}

// New creates a new cleanup worker.
func New(app *setup.App, logger *zap.Logger) *Worker {
	reporter := core.NewStatusReporter(app.StatusClient, "cleanup", logger)

	w := &Worker{
		db:     app.DB,
		logger: logger.Named("cleanup_worker"),
	}

	w.loop = core.NewLoop(
		app.Queue, reporter, queue.TopicCleanup, "cleanup",
		app.Config.Worker.BatchSize, w.handle, w.logger,
	)

	return w
}

// Start runs the worker until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	return w.loop.Run(ctx)
}

// handle performs one retention sweep. Deletes are idempotent; a redelivered
// sweep finds nothing left to remove.
func (w *Worker) handle(ctx context.Context, entry queue.Entry) error {
	var job queue.CleanupJob
	if err := entry.DecodePayload(&job); err != nil {
		w.logger.Error("Dropping malformed cleanup job",
			zap.String("entryID", entry.ID), zap.Error(err))

		return nil
	}

	retention := job.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}

	cutoff := time.Now().AddDate(0, 0, -retention)

	eventsDeleted, err := w.db.Model().Event().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	auditsDeleted, err := w.db.Model().Audit().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	w.logger.Info("Retention sweep complete",
		zap.Time("cutoff", cutoff),
		zap.Int64("eventsDeleted", eventsDeleted),
		zap.Int64("auditsDeleted", auditsDeleted))

	return nil
}
