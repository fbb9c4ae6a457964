package aggregator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chatwarden/warden/internal/aggregator"
	"github.com/chatwarden/warden/internal/cache"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/database/types/enum"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory Store for exercising the builder without
// Postgres. Inserts are idempotent by event id, matching the durable layer.
type fakeStore struct {
	mu      sync.Mutex
	configs map[uint64]*types.ScopeConfig
	actors  map[string]*types.Actor
	events  map[string]*types.Event
	inserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs: make(map[uint64]*types.ScopeConfig),
		actors:  make(map[string]*types.Actor),
		events:  make(map[string]*types.Event),
	}
}

func actorKey(actorID, scopeID uint64) string {
	return fmt.Sprintf("%d:%d", actorID, scopeID)
}

func (s *fakeStore) ScopeConfig(_ context.Context, scopeID uint64) (*types.ScopeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[scopeID]
	if !ok {
		return nil, types.ErrScopeNotFound
	}

	return cfg, nil
}

func (s *fakeStore) InsertEvent(_ context.Context, event *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return nil
	}

	s.events[event.ID] = event
	s.inserts++

	return nil
}

func (s *fakeStore) RecentByScope(_ context.Context, scopeID uint64, limit int) ([]*types.Event, error) {
	return s.recent(func(e *types.Event) bool { return e.ScopeID == scopeID }, limit), nil
}

func (s *fakeStore) RecentByActor(_ context.Context, actorID, scopeID uint64, limit int) ([]*types.Event, error) {
	return s.recent(func(e *types.Event) bool {
		return e.ActorID == actorID && e.ScopeID == scopeID
	}, limit), nil
}

func (s *fakeStore) RecentByActorGlobal(_ context.Context, actorID uint64, limit int) ([]*types.Event, error) {
	return s.recent(func(e *types.Event) bool { return e.ActorID == actorID }, limit), nil
}

func (s *fakeStore) GetOrCreateActor(_ context.Context, actorID, scopeID uint64, name string) (*types.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := actorKey(actorID, scopeID)
	if actor, ok := s.actors[key]; ok {
		return actor, nil
	}

	actor := &types.Actor{
		ID:         actorID,
		ScopeID:    scopeID,
		Name:       name,
		State:      enum.ActorStateNormal,
		Reputation: types.ReputationStart,
	}
	s.actors[key] = actor

	return actor, nil
}

func (s *fakeStore) setReputation(actorID, scopeID uint64, state enum.ActorState, reputation int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor := s.actors[actorKey(actorID, scopeID)]
	actor.State = state
	actor.Reputation = reputation
}

func (s *fakeStore) recent(match func(*types.Event) bool, limit int) []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var window []*types.Event

	for _, e := range s.events {
		if match(e) {
			window = append(window, e)
		}
	}

	for i := range window {
		for j := i + 1; j < len(window); j++ {
			if window[j].CreatedAt.Before(window[i].CreatedAt) {
				window[i], window[j] = window[j], window[i]
			}
		}
	}

	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}

	return window
}

func setupTest(t *testing.T) (*aggregator.Builder, *fakeStore, *cache.Cache) {
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

	store := newFakeStore()
	contextCache := cache.New(client, cfg, logger)

	return aggregator.NewBuilder(store, contextCache, cfg, logger), store, contextCache
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

func configureScope(store *fakeStore, scopeID uint64) {
	store.configs[scopeID] = &types.ScopeConfig{
		ScopeID:             scopeID,
		ConfidenceThreshold: 0.7,
		RulesText:           "no spam",
	}
}

func TestBuildUnconfiguredScopeRejected(t *testing.T) {
	t.Parallel()

	builder, store, _ := setupTest(t)

	_, err := builder.Build(t.Context(), testEvent("evt-1", 1, 10, time.Now()), "alice")
	require.ErrorIs(t, err, aggregator.ErrScopeNotConfigured)

	// The precondition fires before anything is written
	assert.Zero(t, store.inserts)
}

func TestBuildAssemblesBundle(t *testing.T) {
	t.Parallel()

	builder, store, _ := setupTest(t)
	ctx := t.Context()
	configureScope(store, 10)

	event := testEvent("evt-1", 1, 10, time.Now())

	bundle, err := builder.Build(ctx, event, "alice")
	require.NoError(t, err)

	assert.Equal(t, "no spam", bundle.ScopeConfig.RulesText)
	assert.Equal(t, types.ReputationStart, bundle.Reputation.Reputation)
	assert.Equal(t, enum.ActorStateNormal, bundle.Reputation.State)

	// The judged event is visible in its own windows
	require.Len(t, bundle.ScopeWindow, 1)
	require.Len(t, bundle.ActorWindow, 1)
	require.Len(t, bundle.GlobalWindow, 1)
	assert.Equal(t, "evt-1", bundle.ScopeWindow[0].ID)
}

func TestBuildIdempotentReAggregation(t *testing.T) {
	t.Parallel()

	builder, store, contextCache := setupTest(t)
	ctx := t.Context()
	configureScope(store, 10)

	event := testEvent("evt-1", 1, 10, time.Now())

	first, err := builder.Build(ctx, event, "alice")
	require.NoError(t, err)
	require.Len(t, first.ScopeWindow, 1)

	// Redelivery of the same event changes nothing
	second, err := builder.Build(ctx, event, "alice")
	require.NoError(t, err)
	assert.Len(t, second.ScopeWindow, 1)
	assert.Len(t, second.ActorWindow, 1)
	assert.Len(t, second.GlobalWindow, 1)
	assert.Equal(t, 1, store.inserts)

	window, err := contextCache.ScopeWindow(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, window, 1)
}

func TestBuildReadYourWritesAfterInvalidation(t *testing.T) {
	t.Parallel()

	builder, store, contextCache := setupTest(t)
	ctx := t.Context()
	configureScope(store, 10)

	now := time.Now()

	bundle, err := builder.Build(ctx, testEvent("evt-1", 1, 10, now), "alice")
	require.NoError(t, err)
	require.Equal(t, types.ReputationStart, bundle.Reputation.Reputation)

	// A store write alone is not visible; the cached snapshot still serves.
	store.setReputation(1, 10, enum.ActorStateWarned, 70)

	bundle, err = builder.Build(ctx, testEvent("evt-2", 1, 10, now.Add(time.Second)), "alice")
	require.NoError(t, err)
	assert.Equal(t, types.ReputationStart, bundle.Reputation.Reputation)

	// Invalidation publishes the write; the next read falls through to the
	// store and observes it.
	require.NoError(t, contextCache.InvalidateReputation(ctx, 1, 10))

	bundle, err = builder.Build(ctx, testEvent("evt-3", 1, 10, now.Add(2*time.Second)), "alice")
	require.NoError(t, err)
	assert.Equal(t, 70, bundle.Reputation.Reputation)
	assert.Equal(t, enum.ActorStateWarned, bundle.Reputation.State)
}

func TestBuildRepopulatesWindowFromStore(t *testing.T) {
	t.Parallel()

	builder, store, contextCache := setupTest(t)
	ctx := t.Context()
	configureScope(store, 10)

	now := time.Now().UTC().Truncate(time.Second)

	// History exists only in the store, as after a cache flush.
	require.NoError(t, store.InsertEvent(ctx, testEvent("old-1", 2, 10, now.Add(-2*time.Minute))))
	require.NoError(t, store.InsertEvent(ctx, testEvent("old-2", 2, 10, now.Add(-time.Minute))))

	bundle, err := builder.Build(ctx, testEvent("evt-1", 1, 10, now), "alice")
	require.NoError(t, err)

	require.Len(t, bundle.ScopeWindow, 3)
	assert.Equal(t, "old-1", bundle.ScopeWindow[0].ID)
	assert.Equal(t, "evt-1", bundle.ScopeWindow[2].ID)

	// The fallback read rebuilt the cached window
	window, err := contextCache.ScopeWindow(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, window, 3)
}
