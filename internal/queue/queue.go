package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// DeadLetterSuffix is appended to a topic name to form its dead-letter
// topic. Entries land there after exhausting their delivery attempts.
const DeadLetterSuffix = ":dead"

// Client is a durable, at-least-once work queue over Redis Streams. Each
// topic is one stream; each worker class registers its own consumer group
// and so receives every entry independently of other groups. Delivery within
// a group is mutually exclusive: an entry is pending for exactly one group
// member until acknowledged or reclaimed.
//
// Ordering is append order for fresh entries; reclaimed entries may
// interleave out of original order. Handlers must be idempotent under
// redelivery, keyed on payload identity rather than delivery count.
type Client struct {
	client rueidis.Client
	cfg    *config.Queue
	logger *zap.Logger
}

// NewClient creates a queue client over an established Redis connection.
func NewClient(client rueidis.Client, cfg *config.Queue, logger *zap.Logger) *Client {
	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger.Named("queue"),
	}
}

// Enqueue appends a payload to a topic and returns the assigned entry id.
// The stream is trimmed approximately at the configured maximum length;
// trimming never removes entries still pending for a registered group
// because pending entries are tracked per group, not in the stream body,
// and the retention horizon is sized above the reclaim window.
func (c *Client) Enqueue(ctx context.Context, topic string, payload any) (string, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	builder := c.client.B().Xadd().Key(topic)

	var cmd rueidis.Completed
	if c.cfg.MaxLen > 0 {
		cmd = builder.Maxlen().Almost().Threshold(strconv.Itoa(c.cfg.MaxLen)).Id("*").
			FieldValue().
			FieldValue(fieldPayload, string(body)).
			FieldValue(fieldEnqueuedAt, time.Now().UTC().Format(time.RFC3339Nano)).
			Build()
	} else {
		cmd = builder.Id("*").
			FieldValue().
			FieldValue(fieldPayload, string(body)).
			FieldValue(fieldEnqueuedAt, time.Now().UTC().Format(time.RFC3339Nano)).
			Build()
	}

	entryID, err := c.client.Do(ctx, cmd).ToString()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	c.logger.Debug("Enqueued entry",
		zap.String("topic", topic),
		zap.String("entryID", entryID))

	return entryID, nil
}

// EnsureGroup registers a consumer group on a topic, creating the stream if
// needed. Re-registering an existing group is not an error.
func (c *Client) EnsureGroup(ctx context.Context, topic, group string) error {
	err := c.client.Do(ctx,
		c.client.B().XgroupCreate().Key(topic).Group(group).Id("0").Mkstream().Build(),
	).Error()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}

		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	c.logger.Info("Created consumer group",
		zap.String("topic", topic),
		zap.String("group", group))

	return nil
}

// Consume returns up to maxBatch entries for a consumer: entries that timed
// out on another group member first, then fresh entries in append order.
// Blocks up to the configured wait when nothing is immediately available.
// Entries stay pending for this consumer until acknowledged.
func (c *Client) Consume(
	ctx context.Context, topic, group, consumer string, maxBatch int,
) ([]Entry, error) {
	entries, err := c.claimStale(ctx, topic, group, consumer, maxBatch)
	if err != nil {
		return nil, err
	}

	if len(entries) >= maxBatch {
		return entries, nil
	}

	fresh, err := c.readFresh(ctx, topic, group, consumer, maxBatch-len(entries), len(entries) == 0)
	if err != nil {
		return nil, err
	}

	return append(entries, fresh...), nil
}

// Ack marks an entry acknowledged for one consumer group only. Other groups'
// delivery states are unaffected.
func (c *Client) Ack(ctx context.Context, topic, group, entryID string) error {
	err := c.client.Do(ctx,
		c.client.B().Xack().Key(topic).Group(group).Id(entryID).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	return nil
}

// PendingEntry is one row of the extended XPENDING reply.
type PendingEntry struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	Deliveries int64
}

// Pending lists unacknowledged entries for a group, oldest first.
func (c *Client) Pending(ctx context.Context, topic, group string, count int) ([]PendingEntry, error) {
	reply, err := c.client.Do(ctx,
		c.client.B().Xpending().Key(topic).Group(group).Start("-").End("+").Count(int64(count)).Build(),
	).ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	pending := make([]PendingEntry, 0, len(reply))

	for _, item := range reply {
		row, err := item.ToArray()
		if err != nil || len(row) < 4 {
			continue
		}

		id, _ := row[0].ToString()
		consumer, _ := row[1].ToString()
		idleMs, _ := row[2].AsInt64()
		deliveries, _ := row[3].AsInt64()

		pending = append(pending, PendingEntry{
			ID:         id,
			Consumer:   consumer,
			Idle:       time.Duration(idleMs) * time.Millisecond,
			Deliveries: deliveries,
		})
	}

	return pending, nil
}

// claimStale transfers entries pending beyond the reclaim idle time to this
// consumer. The min-idle guard on XCLAIM makes concurrent claims race-safe:
// only one group member wins each entry.
func (c *Client) claimStale(
	ctx context.Context, topic, group, consumer string, maxBatch int,
) ([]Entry, error) {
	minIdle := c.reclaimIdle()

	pending, err := c.Pending(ctx, topic, group, maxBatch*4)
	if err != nil {
		return nil, err
	}

	stale := make([]string, 0, len(pending))
	attempts := make(map[string]int64, len(pending))

	for _, p := range pending {
		if p.Idle < minIdle {
			continue
		}

		// Entries out of attempts belong to the dead-letter reclaimer.
		if c.cfg.MaxAttempts > 0 && p.Deliveries >= int64(c.cfg.MaxAttempts) {
			continue
		}

		stale = append(stale, p.ID)
		// XCLAIM increments the delivery counter
		attempts[p.ID] = p.Deliveries + 1

		if len(stale) >= maxBatch {
			break
		}
	}

	if len(stale) == 0 {
		return nil, nil
	}

	claimed, err := c.client.Do(ctx, c.client.B().Xclaim().
		Key(topic).
		Group(group).
		Consumer(consumer).
		MinIdleTime(strconv.FormatInt(minIdle.Milliseconds(), 10)).
		Id(stale...).
		Build()).AsXRange()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	entries := make([]Entry, 0, len(claimed))
	for _, msg := range claimed {
		entries = append(entries, entryFromFields(msg.ID, topic, msg.FieldValues, attempts[msg.ID]))
	}

	if len(entries) > 0 {
		c.logger.Debug("Reclaimed stale entries",
			zap.String("topic", topic),
			zap.String("group", group),
			zap.Int("count", len(entries)))
	}

	return entries, nil
}

// readFresh reads never-delivered entries for this consumer, blocking up to
// the configured wait when block is requested and nothing is available.
func (c *Client) readFresh(
	ctx context.Context, topic, group, consumer string, count int, block bool,
) ([]Entry, error) {
	builder := c.client.B().Xreadgroup().Group(group, consumer).Count(int64(count))

	var cmd rueidis.Completed
	if block && c.cfg.BlockTimeout > 0 {
		cmd = builder.Block(int64(c.cfg.BlockTimeout)).Streams().Key(topic).Id(">").Build()
	} else {
		cmd = builder.Streams().Key(topic).Id(">").Build()
	}

	streams, err := c.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	var entries []Entry

	for _, msgs := range streams {
		for _, msg := range msgs {
			entries = append(entries, entryFromFields(msg.ID, topic, msg.FieldValues, 1))
		}
	}

	return entries, nil
}

func (c *Client) reclaimIdle() time.Duration {
	return time.Duration(c.cfg.ReclaimIdle) * time.Second
}
