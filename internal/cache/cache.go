package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

var (
	// ErrCacheMiss indicates the key was absent or expired.
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheUnavailable indicates the cache layer could not be reached.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// Cache provides typed access to the Redis-backed context caches: bounded
// recent-activity windows, scope config snapshots, and reputation snapshots.
// All mutation helpers are idempotent by event id or key, so concurrent
// repopulation is safe without coordination.
type Cache struct {
	client rueidis.Client
	cfg    *config.Cache
	logger *zap.Logger
}

// New creates a cache around an established Redis client.
func New(client rueidis.Client, cfg *config.Cache, logger *zap.Logger) *Cache {
	return &Cache{
		client: client,
		cfg:    cfg,
		logger: logger.Named("cache"),
	}
}

// AppendScopeEvent appends an event to the scope recent-activity window,
// trimming the oldest entries beyond the window limit.
func (c *Cache) AppendScopeEvent(ctx context.Context, event *types.Event) error {
	return c.appendWindow(ctx, keyScopeWindow(event.ScopeID), event,
		c.cfg.ScopeWindowLimit, c.scopeWindowTTL())
}

// AppendActorEvent appends an event to the actor's per-scope window.
func (c *Cache) AppendActorEvent(ctx context.Context, event *types.Event) error {
	return c.appendWindow(ctx, keyActorWindow(event.ActorID, event.ScopeID), event,
		c.cfg.ActorWindowLimit, c.actorWindowTTL())
}

// AppendGlobalEvent appends an event to the actor's cross-scope window.
func (c *Cache) AppendGlobalEvent(ctx context.Context, event *types.Event) error {
	return c.appendWindow(ctx, keyGlobalWindow(event.ActorID), event,
		c.cfg.ActorWindowLimit, c.globalWindowTTL())
}

// ScopeWindow returns the scope recent-activity window, oldest first.
func (c *Cache) ScopeWindow(ctx context.Context, scopeID uint64) ([]*types.Event, error) {
	return c.readWindow(ctx, keyScopeWindow(scopeID))
}

// ActorWindow returns the actor's per-scope window, oldest first.
func (c *Cache) ActorWindow(ctx context.Context, actorID, scopeID uint64) ([]*types.Event, error) {
	return c.readWindow(ctx, keyActorWindow(actorID, scopeID))
}

// GlobalWindow returns the actor's cross-scope window, oldest first.
func (c *Cache) GlobalWindow(ctx context.Context, actorID uint64) ([]*types.Event, error) {
	return c.readWindow(ctx, keyGlobalWindow(actorID))
}

// ReplaceScopeWindow atomically rebuilds the scope window from durable rows.
func (c *Cache) ReplaceScopeWindow(ctx context.Context, scopeID uint64, events []*types.Event) error {
	return c.replaceWindow(ctx, keyScopeWindow(scopeID), events, c.scopeWindowTTL())
}

// ReplaceActorWindow atomically rebuilds an actor window from durable rows.
func (c *Cache) ReplaceActorWindow(ctx context.Context, actorID, scopeID uint64, events []*types.Event) error {
	return c.replaceWindow(ctx, keyActorWindow(actorID, scopeID), events, c.actorWindowTTL())
}

// ReplaceGlobalWindow atomically rebuilds an actor's cross-scope window.
func (c *Cache) ReplaceGlobalWindow(ctx context.Context, actorID uint64, events []*types.Event) error {
	return c.replaceWindow(ctx, keyGlobalWindow(actorID), events, c.globalWindowTTL())
}

// SetScopeConfig caches a scope config snapshot with the configured TTL.
func (c *Cache) SetScopeConfig(ctx context.Context, cfg *types.ScopeConfig) error {
	return c.setJSON(ctx, keyScopeConfig(cfg.ScopeID), cfg,
		time.Duration(c.cfg.ScopeConfigTTL)*time.Second)
}

// GetScopeConfig returns the cached scope config or ErrCacheMiss.
func (c *Cache) GetScopeConfig(ctx context.Context, scopeID uint64) (*types.ScopeConfig, error) {
	var cfg types.ScopeConfig
	if err := c.getJSON(ctx, keyScopeConfig(scopeID), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetReputation caches an actor's reputation snapshot with the configured TTL.
func (c *Cache) SetReputation(ctx context.Context, snapshot *types.ReputationSnapshot) error {
	return c.setJSON(ctx, keyReputation(snapshot.ActorID, snapshot.ScopeID), snapshot,
		time.Duration(c.cfg.ReputationTTL)*time.Second)
}

// GetReputation returns the cached reputation snapshot or ErrCacheMiss.
func (c *Cache) GetReputation(ctx context.Context, actorID, scopeID uint64) (*types.ReputationSnapshot, error) {
	var snapshot types.ReputationSnapshot
	if err := c.getJSON(ctx, keyReputation(actorID, scopeID), &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// InvalidateReputation drops the cached snapshot after a reputation write.
// The durable store is authoritative; the next read repopulates the cache.
func (c *Cache) InvalidateReputation(ctx context.Context, actorID, scopeID uint64) error {
	err := c.client.Do(ctx,
		c.client.B().Del().Key(keyReputation(actorID, scopeID)).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	return nil
}

func (c *Cache) appendWindow(
	ctx context.Context, key string, event *types.Event, limit int, ttl time.Duration,
) error {
	// Idempotence under re-aggregation: skip if the event id is already in
	// the retained window.
	existing, err := c.readWindow(ctx, key)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return err
	}

	for _, e := range existing {
		if e.ID == event.ID {
			return nil
		}
	}

	payload, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	cmds := make(rueidis.Commands, 0, 3)
	cmds = append(cmds, c.client.B().Rpush().Key(key).Element(string(payload)).Build())
	cmds = append(cmds, c.client.B().Ltrim().Key(key).Start(int64(-limit)).Stop(-1).Build())

	if ttl > 0 {
		cmds = append(cmds, c.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build())
	}

	for _, resp := range c.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
		}
	}

	return nil
}

func (c *Cache) readWindow(ctx context.Context, key string) ([]*types.Event, error) {
	items, err := c.client.Do(ctx,
		c.client.B().Lrange().Key(key).Start(0).Stop(-1).Build(),
	).AsStrSlice()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrCacheMiss
		}

		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	if len(items) == 0 {
		return nil, ErrCacheMiss
	}

	events := make([]*types.Event, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		var event types.Event
		if err := sonic.Unmarshal([]byte(item), &event); err != nil {
			c.logger.Warn("Dropping malformed window entry", zap.String("key", key), zap.Error(err))
			continue
		}

		if _, ok := seen[event.ID]; ok {
			continue
		}

		seen[event.ID] = struct{}{}
		events = append(events, &event)
	}

	return events, nil
}

func (c *Cache) replaceWindow(
	ctx context.Context, key string, events []*types.Event, ttl time.Duration,
) error {
	cmds := make(rueidis.Commands, 0, len(events)+2)
	cmds = append(cmds, c.client.B().Del().Key(key).Build())

	for _, event := range events {
		payload, err := sonic.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
		}

		cmds = append(cmds, c.client.B().Rpush().Key(key).Element(string(payload)).Build())
	}

	if ttl > 0 && len(events) > 0 {
		cmds = append(cmds, c.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build())
	}

	for _, resp := range c.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
		}
	}

	return nil
}

func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	builder := c.client.B().Set().Key(key).Value(string(payload))

	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}

	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, out any) error {
	raw, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return ErrCacheMiss
		}

		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	if err := sonic.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return nil
}

func (c *Cache) scopeWindowTTL() time.Duration {
	return time.Duration(c.cfg.ScopeWindowTTL) * time.Second
}

func (c *Cache) actorWindowTTL() time.Duration {
	return time.Duration(c.cfg.ActorWindowTTL) * time.Second
}

func (c *Cache) globalWindowTTL() time.Duration {
	return time.Duration(c.cfg.GlobalWindowTTL) * time.Second
}
