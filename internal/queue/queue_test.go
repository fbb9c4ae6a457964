package queue_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chatwarden/warden/internal/queue"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testPayload struct {
	EventID string `json:"eventId"`
	Value   int    `json:"value"`
}

func setupTest(t *testing.T, cfg *config.Queue) (*queue.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return queue.NewClient(client, cfg, logger), mr
}

func testQueueConfig() *config.Queue {
	return &config.Queue{
		ReclaimIdle:     1,
		ReclaimInterval: 1,
		MaxAttempts:     3,
		BlockTimeout:    0,
		MaxLen:          0,
	}
}

func TestEnqueueConsumeAck(t *testing.T) {
	t.Parallel()

	q, _ := setupTest(t, testQueueConfig())
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))

	id, err := q.Enqueue(ctx, "events", testPayload{EventID: "evt-1", Value: 42})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := q.Consume(ctx, "events", "moderation", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, "events", entry.Topic)
	assert.Equal(t, int64(1), entry.Attempt)
	assert.False(t, entry.EnqueuedAt.IsZero())

	var payload testPayload
	require.NoError(t, entry.DecodePayload(&payload))
	assert.Equal(t, "evt-1", payload.EventID)
	assert.Equal(t, 42, payload.Value)

	require.NoError(t, q.Ack(ctx, "events", "moderation", entry.ID))

	// Acked entries are not redelivered
	entries, err = q.Consume(ctx, "events", "moderation", "consumer-1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	pending, err := q.Pending(ctx, "events", "moderation", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEnsureGroupIdempotent(t *testing.T) {
	t.Parallel()

	q, _ := setupTest(t, testQueueConfig())
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))
	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))
}

func TestConsumerGroupsAreIndependent(t *testing.T) {
	t.Parallel()

	q, _ := setupTest(t, testQueueConfig())
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "embedding"))
	require.NoError(t, q.EnsureGroup(ctx, "events", "ingest"))

	_, err := q.Enqueue(ctx, "events", testPayload{EventID: "evt-1"})
	require.NoError(t, err)

	// Both groups receive the entry independently
	embeddingEntries, err := q.Consume(ctx, "events", "embedding", "e-1", 10)
	require.NoError(t, err)
	require.Len(t, embeddingEntries, 1)

	ingestEntries, err := q.Consume(ctx, "events", "ingest", "i-1", 10)
	require.NoError(t, err)
	require.Len(t, ingestEntries, 1)

	// Acking in one group leaves the other group's delivery pending
	require.NoError(t, q.Ack(ctx, "events", "embedding", embeddingEntries[0].ID))

	pending, err := q.Pending(ctx, "events", "ingest", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMutualExclusionWithinGroup(t *testing.T) {
	t.Parallel()

	q, _ := setupTest(t, testQueueConfig())
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))

	_, err := q.Enqueue(ctx, "events", testPayload{EventID: "evt-1"})
	require.NoError(t, err)

	entries, err := q.Consume(ctx, "events", "moderation", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// A second member of the same group sees nothing while the entry is
	// pending and fresh.
	entries, err = q.Consume(ctx, "events", "moderation", "consumer-2", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRedeliveryAfterIdle(t *testing.T) {
	t.Parallel()

	q, mr := setupTest(t, testQueueConfig())
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))

	id, err := q.Enqueue(ctx, "events", testPayload{EventID: "evt-1"})
	require.NoError(t, err)

	entries, err := q.Consume(ctx, "events", "moderation", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// consumer-1 never acks; age the entry past the reclaim idle time
	mr.SetTime(time.Now().Add(2 * time.Second))

	entries, err = q.Consume(ctx, "events", "moderation", "consumer-2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, int64(2), entries[0].Attempt)
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	cfg := testQueueConfig()
	cfg.MaxAttempts = 2

	q, mr := setupTest(t, cfg)
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))

	_, err := q.Enqueue(ctx, "events", testPayload{EventID: "evt-poison"})
	require.NoError(t, err)

	// First delivery
	entries, err := q.Consume(ctx, "events", "moderation", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Second delivery via reclaim
	mr.SetTime(time.Now().Add(2 * time.Second))

	entries, err = q.Consume(ctx, "events", "moderation", "consumer-2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Attempt)

	// Out of attempts: consumers skip it, the reclaimer parks it
	mr.SetTime(time.Now().Add(4 * time.Second))

	entries, err = q.Consume(ctx, "events", "moderation", "consumer-3", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	reclaimer := queue.NewReclaimer(q, "events", "moderation", logger)

	moved, err := reclaimer.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	// Original group has nothing pending anymore
	pending, err := q.Pending(ctx, "events", "moderation", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The entry is readable from the dead-letter topic with its payload intact
	deadTopic := "events" + queue.DeadLetterSuffix
	require.NoError(t, q.EnsureGroup(ctx, deadTopic, "reaper"))

	deadEntries, err := q.Consume(ctx, deadTopic, "reaper", "inspector", 10)
	require.NoError(t, err)
	require.Len(t, deadEntries, 1)

	var payload testPayload
	require.NoError(t, deadEntries[0].DecodePayload(&payload))
	assert.Equal(t, "evt-poison", payload.EventID)
}

func TestNoDeadLetterWithoutAttemptLimit(t *testing.T) {
	t.Parallel()

	cfg := testQueueConfig()
	cfg.MaxAttempts = 0

	q, mr := setupTest(t, cfg)
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))

	_, err := q.Enqueue(ctx, "events", testPayload{EventID: "evt-1"})
	require.NoError(t, err)

	entries, err := q.Consume(ctx, "events", "moderation", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	mr.SetTime(time.Now().Add(2 * time.Second))

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	// Unlimited attempts means entries are redelivered forever, never parked.
	reclaimer := queue.NewReclaimer(q, "events", "moderation", logger)

	moved, err := reclaimer.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved)

	pending, err := q.Pending(ctx, "events", "moderation", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestConsumeBatchLimit(t *testing.T) {
	t.Parallel()

	q, _ := setupTest(t, testQueueConfig())
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))

	for i := range 5 {
		_, err := q.Enqueue(ctx, "events", testPayload{EventID: "evt", Value: i})
		require.NoError(t, err)
	}

	entries, err := q.Consume(ctx, "events", "moderation", "consumer-1", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = q.Consume(ctx, "events", "moderation", "consumer-1", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOrderingWithinTopic(t *testing.T) {
	t.Parallel()

	q, _ := setupTest(t, testQueueConfig())
	ctx := t.Context()

	require.NoError(t, q.EnsureGroup(ctx, "events", "moderation"))

	var ids []string

	for i := range 4 {
		id, err := q.Enqueue(ctx, "events", testPayload{Value: i})
		require.NoError(t, err)

		ids = append(ids, id)
	}

	entries, err := q.Consume(ctx, "events", "moderation", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	for i, entry := range entries {
		assert.Equal(t, ids[i], entry.ID)

		var payload testPayload
		require.NoError(t, entry.DecodePayload(&payload))
		assert.Equal(t, i, payload.Value)
	}
}
