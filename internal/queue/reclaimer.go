package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// reclaimerConsumer is the consumer name the reclaimer claims poisoned
// entries under before moving them to the dead-letter topic.
const reclaimerConsumer = "reclaimer"

// Reclaimer watches a (topic, group) pair and moves entries that keep timing
// out to the dead-letter topic. Entries below the attempt limit are left
// pending; Consume redelivers those to live group members. Fail-closed for
// enrichment work: poisoned entries are parked and logged, never retried
// forever.
type Reclaimer struct {
	queue  *Client
	topic  string
	group  string
	logger *zap.Logger
}

// NewReclaimer creates a reclaimer for one topic and consumer group.
func NewReclaimer(queue *Client, topic, group string, logger *zap.Logger) *Reclaimer {
	return &Reclaimer{
		queue:  queue,
		topic:  topic,
		group:  group,
		logger: logger.Named("reclaimer"),
	}
}

// Start runs the reclaim scan on the configured interval until the context
// is canceled.
func (r *Reclaimer) Start(ctx context.Context) {
	interval := time.Duration(r.queue.cfg.ReclaimInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if moved, err := r.Sweep(ctx); err != nil {
				r.logger.Error("Reclaim sweep failed",
					zap.String("topic", r.topic),
					zap.String("group", r.group),
					zap.Error(err))
			} else if moved > 0 {
				r.logger.Warn("Moved poisoned entries to dead letter",
					zap.String("topic", r.topic),
					zap.String("group", r.group),
					zap.Int("moved", moved))
			}
		}
	}
}

// Sweep performs one scan: entries pending beyond the reclaim idle time with
// deliveries at or above the attempt limit are claimed, re-appended to the
// dead-letter topic, and acknowledged on the original topic. Returns the
// number of entries moved.
func (r *Reclaimer) Sweep(ctx context.Context) (int, error) {
	// Without an attempt limit nothing is ever poisoned.
	if r.queue.cfg.MaxAttempts <= 0 {
		return 0, nil
	}

	pending, err := r.queue.Pending(ctx, r.topic, r.group, 128)
	if err != nil {
		return 0, err
	}

	minIdle := r.queue.reclaimIdle()
	moved := 0

	for _, p := range pending {
		if p.Idle < minIdle || p.Deliveries < int64(r.queue.cfg.MaxAttempts) {
			continue
		}

		if err := r.park(ctx, p); err != nil {
			r.logger.Error("Failed to park entry",
				zap.String("entryID", p.ID),
				zap.Error(err))

			continue
		}

		moved++
	}

	return moved, nil
}

// park claims one poisoned entry and moves it to the dead-letter topic. The
// claim's min-idle guard ensures only one reclaimer instance wins the move.
func (r *Reclaimer) park(ctx context.Context, p PendingEntry) error {
	client := r.queue.client
	minIdle := r.queue.reclaimIdle()

	claimed, err := client.Do(ctx, client.B().Xclaim().
		Key(r.topic).
		Group(r.group).
		Consumer(reclaimerConsumer).
		MinIdleTime(strconv.FormatInt(minIdle.Milliseconds(), 10)).
		Id(p.ID).
		Build()).AsXRange()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil
		}

		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	if len(claimed) == 0 {
		return nil
	}

	deadTopic := r.topic + DeadLetterSuffix
	fields := claimed[0].FieldValues

	builder := client.B().Xadd().Key(deadTopic).Id("*").FieldValue()
	for field, value := range fields {
		builder = builder.FieldValue(field, value)
	}

	if err := client.Do(ctx, builder.Build()).Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	return r.queue.Ack(ctx, r.topic, r.group, p.ID)
}
