package cache_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chatwarden/warden/internal/cache"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/database/types/enum"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
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

	cfg := &config.Cache{
		ScopeConfigTTL:   300,
		ScopeWindowTTL:   900,
		ActorWindowTTL:   900,
		GlobalWindowTTL:  900,
		ReputationTTL:    300,
		ScopeWindowLimit: 5,
		ActorWindowLimit: 3,
	}

	return cache.New(client, cfg, logger), mr
}

func testEvent(id string, actorID, scopeID uint64, at time.Time) *types.Event {
	return &types.Event{
		ID:        id,
		ScopeID:   scopeID,
		ActorID:   actorID,
		Kind:      "text",
		Text:      "hello " + id,
		CreatedAt: at,
	}
}

func TestWindowAppendAndRead(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, c.AppendScopeEvent(ctx, testEvent("evt-1", 1, 10, now)))
	require.NoError(t, c.AppendScopeEvent(ctx, testEvent("evt-2", 2, 10, now.Add(time.Second))))

	window, err := c.ScopeWindow(ctx, 10)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "evt-1", window[0].ID)
	assert.Equal(t, "evt-2", window[1].ID)
	assert.Equal(t, "hello evt-1", window[0].Text)
}

func TestWindowMissOnEmpty(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)

	_, err := c.ScopeWindow(t.Context(), 999)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	_, err = c.ActorWindow(t.Context(), 1, 999)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestWindowAppendIsIdempotent(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)
	ctx := t.Context()
	event := testEvent("evt-1", 1, 10, time.Now())

	require.NoError(t, c.AppendActorEvent(ctx, event))
	require.NoError(t, c.AppendActorEvent(ctx, event))
	require.NoError(t, c.AppendActorEvent(ctx, event))

	window, err := c.ActorWindow(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, window, 1)
}

func TestWindowTrimsToLimit(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)
	ctx := t.Context()
	now := time.Now()

	// Actor window limit is 3; the oldest two must fall off
	for i := range 5 {
		event := testEvent(string(rune('a'+i)), 7, 10, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, c.AppendActorEvent(ctx, event))
	}

	window, err := c.ActorWindow(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "c", window[0].ID)
	assert.Equal(t, "e", window[2].ID)
}

func TestReplaceWindow(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)
	ctx := t.Context()
	now := time.Now()

	require.NoError(t, c.AppendScopeEvent(ctx, testEvent("stale", 1, 10, now)))

	fresh := []*types.Event{
		testEvent("evt-1", 1, 10, now),
		testEvent("evt-2", 2, 10, now.Add(time.Second)),
	}
	require.NoError(t, c.ReplaceScopeWindow(ctx, 10, fresh))

	window, err := c.ScopeWindow(ctx, 10)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "evt-1", window[0].ID)
}

func TestWindowExpires(t *testing.T) {
	t.Parallel()

	c, mr := setupTest(t)
	ctx := t.Context()

	require.NoError(t, c.AppendGlobalEvent(ctx, testEvent("evt-1", 1, 10, time.Now())))

	mr.FastForward(901 * time.Second)

	_, err := c.GlobalWindow(ctx, 1)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestScopeConfigRoundTrip(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)
	ctx := t.Context()

	_, err := c.GetScopeConfig(ctx, 10)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	cfg := &types.ScopeConfig{
		ScopeID:             10,
		ConfidenceThreshold: 0.8,
		RulesText:           "no spam",
		FeaturesEnabled:     map[string]bool{"moderation": true},
	}
	require.NoError(t, c.SetScopeConfig(ctx, cfg))

	got, err := c.GetScopeConfig(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.ConfidenceThreshold)
	assert.Equal(t, "no spam", got.RulesText)
	assert.True(t, got.FeatureEnabled("moderation"))
}

func TestReputationInvalidation(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)
	ctx := t.Context()

	snapshot := &types.ReputationSnapshot{
		ActorID:    1,
		ScopeID:    10,
		State:      enum.ActorStateWarned,
		Reputation: 70,
	}
	require.NoError(t, c.SetReputation(ctx, snapshot))

	got, err := c.GetReputation(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, enum.ActorStateWarned, got.State)
	assert.Equal(t, 70, got.Reputation)

	require.NoError(t, c.InvalidateReputation(ctx, 1, 10))

	_, err = c.GetReputation(ctx, 1, 10)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestActorEmbeddingsWindow(t *testing.T) {
	t.Parallel()

	c, _ := setupTest(t)
	ctx := t.Context()

	_, err := c.ActorEmbeddings(ctx, 1)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	first := &cache.EventEmbedding{EventID: "evt-1", Vector: []float64{1, 0}}
	require.NoError(t, c.AppendActorEmbedding(ctx, 1, first))
	// Idempotent by event id
	require.NoError(t, c.AppendActorEmbedding(ctx, 1, first))
	require.NoError(t, c.AppendActorEmbedding(ctx, 1, &cache.EventEmbedding{EventID: "evt-2", Vector: []float64{0, 1}}))

	embeddings, err := c.ActorEmbeddings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, "evt-1", embeddings[0].EventID)
	assert.Equal(t, []float64{0, 1}, embeddings[1].Vector)
}
