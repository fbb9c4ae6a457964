package core

import (
	"context"
	"errors"
	"time"

	"github.com/chatwarden/warden/internal/queue"
	"go.uber.org/zap"
)

// unavailableBackoff is how long the loop sleeps when the queue cannot be
// reached before trying again.
const unavailableBackoff = 5 * time.Second

// Handler processes one queue entry. A nil return acknowledges the entry; an
// error leaves it pending for redelivery after the reclaim idle time, so
// handlers must be idempotent by payload identity.
type Handler func(ctx context.Context, entry queue.Entry) error

// Loop is the shared consume-process-ack cycle for worker classes. Entries
// are acknowledged only after the handler succeeds; a crash mid-batch leaves
// unhandled entries pending for another group member.
type Loop struct {
	queue     *queue.Client
	reporter  *StatusReporter
	topic     string
	group     string
	consumer  string
	batchSize int
	handler   Handler
	logger    *zap.Logger
}

// NewLoop creates a consume loop. The consumer name must be unique within
// the group; the reporter's worker ID serves that purpose.
func NewLoop(
	q *queue.Client, reporter *StatusReporter, topic, group string, batchSize int,
	handler Handler, logger *zap.Logger,
) *Loop {
	if batchSize <= 0 {
		batchSize = 10
	}

	return &Loop{
		queue:     q,
		reporter:  reporter,
		topic:     topic,
		group:     group,
		consumer:  reporter.GetWorkerID(),
		batchSize: batchSize,
		handler:   handler,
		logger:    logger,
	}
}

// Run consumes until the context is canceled. The consumer group is created
// on entry if it does not exist yet.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.queue.EnsureGroup(ctx, l.topic, l.group); err != nil {
		return err
	}

	// Each loop sweeps its own group for poisoned entries. Concurrent
	// sweepers are safe; the claim's min-idle guard picks one winner.
	go queue.NewReclaimer(l.queue, l.topic, l.group, l.logger).Start(ctx)

	l.reporter.Start(ctx)
	defer l.reporter.Stop()

	l.logger.Info("Worker loop started",
		zap.String("topic", l.topic),
		zap.String("group", l.group),
		zap.String("consumer", l.consumer))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := l.queue.Consume(ctx, l.topic, l.group, l.consumer, l.batchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			l.reporter.SetHealthy(false)
			l.logger.Error("Failed to consume entries", zap.Error(err))

			select {
			case <-time.After(unavailableBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			continue
		}

		l.reporter.SetHealthy(true)

		for _, entry := range entries {
			if err := l.handler(ctx, entry); err != nil {
				// Not acked; redelivered to the group after the idle window.
				l.logger.Warn("Handler failed, leaving entry pending",
					zap.String("entryID", entry.ID),
					zap.Int64("attempt", entry.Attempt),
					zap.Error(err))

				continue
			}

			if err := l.queue.Ack(ctx, l.topic, l.group, entry.ID); err != nil {
				l.logger.Error("Failed to ack entry",
					zap.String("entryID", entry.ID),
					zap.Error(err))

				continue
			}

			l.reporter.UpdateStatus(l.topic, 1)
		}
	}
}
