package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/chatwarden/warden/internal/aggregator"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/queue"
	"github.com/chatwarden/warden/internal/setup"
	"github.com/chatwarden/warden/internal/worker/core"
	"go.uber.org/zap"
)

// Consumer feeds inbound events from the work queue into the orchestrator.
// Contended decisions are left pending so redelivery retries them against the
// updated reputation; events from unconfigured scopes are dropped.
type Consumer struct {
	orchestrator *Orchestrator
	loop         *core.Loop
	logger       *zap.Logger
}

// NewConsumer creates the inbound event consumer for one moderator instance.
func NewConsumer(app *setup.App, orchestrator *Orchestrator, logger *zap.Logger) *Consumer {
	c := &Consumer{
		orchestrator: orchestrator,
		logger:       logger.Named("moderation_consumer"),
	}

	reporter := core.NewStatusReporter(app.StatusClient, "moderator", logger)

	c.loop = core.NewLoop(
		app.Queue, reporter, queue.TopicInbound, "moderation",
		app.Config.Worker.BatchSize, c.handle, c.logger,
	)

	return c
}

// Start consumes until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	return c.loop.Run(ctx)
}

func (c *Consumer) handle(ctx context.Context, entry queue.Entry) error {
	var job queue.EventJob
	if err := entry.DecodePayload(&job); err != nil {
		c.logger.Error("Dropping malformed event job",
			zap.String("entryID", entry.ID), zap.Error(err))

		return nil
	}

	event := &types.Event{
		ID:        job.EventID,
		ScopeID:   job.ScopeID,
		ActorID:   job.ActorID,
		Kind:      job.Kind,
		Text:      job.Text,
		CreatedAt: time.Now(),
	}

	_, err := c.orchestrator.Decide(ctx, event, job.ActorName)
	if err != nil {
		// Unconfigured scopes cannot become configured by retrying the
		// same entry; drop it.
		if errors.Is(err, aggregator.ErrScopeNotConfigured) {
			c.logger.Warn("Dropping event for unconfigured scope",
				zap.String("eventID", job.EventID),
				zap.Uint64("scopeID", job.ScopeID))

			return nil
		}

		return err
	}

	return nil
}
