package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatwarden/warden/internal/cache"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ErrScopeNotConfigured indicates the scope has no moderation configuration,
// so no decision can be made for events in it.
var ErrScopeNotConfigured = errors.New("scope not configured")

// ContextBundle is everything the classifier and the reputation engine need
// to judge one event. Windows are oldest first and already include the event
// being judged. The bundle is a point-in-time snapshot; nothing in it is
// shared with other decisions.
type ContextBundle struct {
	Event        *types.Event
	ScopeConfig  *types.ScopeConfig
	Reputation   *types.ReputationSnapshot
	ScopeWindow  []*types.Event
	ActorWindow  []*types.Event
	GlobalWindow []*types.Event
	// ActorFrequency scores how bursty the actor's recent posting is.
	ActorFrequency float64
	// ScopeFrequency scores overall scope activity.
	ScopeFrequency float64
}

// Store is the durable-store surface the builder reads through. The database
// client satisfies it via NewStore.
type Store interface {
	ScopeConfig(ctx context.Context, scopeID uint64) (*types.ScopeConfig, error)
	InsertEvent(ctx context.Context, event *types.Event) error
	RecentByScope(ctx context.Context, scopeID uint64, limit int) ([]*types.Event, error)
	RecentByActor(ctx context.Context, actorID, scopeID uint64, limit int) ([]*types.Event, error)
	RecentByActorGlobal(ctx context.Context, actorID uint64, limit int) ([]*types.Event, error)
	GetOrCreateActor(ctx context.Context, actorID, scopeID uint64, name string) (*types.Actor, error)
}

// Builder assembles context bundles, reading from the cache first and
// falling back to the durable store on misses. Fallback reads repopulate the
// cache so subsequent bundles for the same keys stay cheap.
type Builder struct {
	store  Store
	cache  *cache.Cache
	cfg    *config.Cache
	logger *zap.Logger
}

// NewBuilder creates a context builder.
func NewBuilder(store Store, c *cache.Cache, cfg *config.Cache, logger *zap.Logger) *Builder {
	return &Builder{
		store:  store,
		cache:  c,
		cfg:    cfg,
		logger: logger.Named("aggregator"),
	}
}

// Build persists the inbound event and assembles its context bundle. The
// scope config is a precondition: unconfigured scopes fail with
// ErrScopeNotConfigured before anything is written. Window and reputation
// loads run in parallel; a cache outage degrades to store-only reads rather
// than failing the decision.
func (b *Builder) Build(ctx context.Context, event *types.Event, actorName string) (*ContextBundle, error) {
	scopeConfig, err := b.scopeConfig(ctx, event.ScopeID)
	if err != nil {
		return nil, err
	}

	// The durable store is the source of truth; the event lands there before
	// any window sees it.
	if err := b.store.InsertEvent(ctx, event); err != nil {
		return nil, err
	}

	bundle := &ContextBundle{
		Event:       event,
		ScopeConfig: scopeConfig,
	}

	p := pool.New().WithErrors().WithContext(ctx)

	p.Go(func(ctx context.Context) error {
		window, err := b.scopeWindow(ctx, event.ScopeID)
		if err != nil {
			return err
		}

		bundle.ScopeWindow = window

		return nil
	})

	p.Go(func(ctx context.Context) error {
		window, err := b.actorWindow(ctx, event.ActorID, event.ScopeID)
		if err != nil {
			return err
		}

		bundle.ActorWindow = window

		return nil
	})

	p.Go(func(ctx context.Context) error {
		window, err := b.globalWindow(ctx, event.ActorID)
		if err != nil {
			return err
		}

		bundle.GlobalWindow = window

		return nil
	})

	p.Go(func(ctx context.Context) error {
		snapshot, err := b.reputation(ctx, event.ActorID, event.ScopeID, actorName)
		if err != nil {
			return err
		}

		bundle.Reputation = snapshot

		return nil
	})

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to assemble context for event %s: %w", event.ID, err)
	}

	b.appendEvent(ctx, bundle)

	bundle.ActorFrequency = FrequencyScore(bundle.ActorWindow)
	bundle.ScopeFrequency = FrequencyScore(bundle.ScopeWindow)

	return bundle, nil
}

// scopeConfig loads the scope's moderation configuration, cache first.
func (b *Builder) scopeConfig(ctx context.Context, scopeID uint64) (*types.ScopeConfig, error) {
	cfg, err := b.cache.GetScopeConfig(ctx, scopeID)
	if err == nil {
		return cfg, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		b.logger.Warn("Scope config cache read failed, using durable store",
			zap.Uint64("scopeID", scopeID), zap.Error(err))
	}

	cfg, err = b.store.ScopeConfig(ctx, scopeID)
	if err != nil {
		if errors.Is(err, types.ErrScopeNotFound) {
			return nil, fmt.Errorf("%w: scope %d", ErrScopeNotConfigured, scopeID)
		}

		return nil, err
	}

	if err := b.cache.SetScopeConfig(ctx, cfg); err != nil {
		b.logger.Warn("Failed to repopulate scope config cache",
			zap.Uint64("scopeID", scopeID), zap.Error(err))
	}

	return cfg, nil
}

func (b *Builder) scopeWindow(ctx context.Context, scopeID uint64) ([]*types.Event, error) {
	window, err := b.cache.ScopeWindow(ctx, scopeID)
	if err == nil {
		return window, nil
	}

	miss := errors.Is(err, cache.ErrCacheMiss)
	if !miss {
		b.logger.Warn("Scope window cache read failed, using durable store",
			zap.Uint64("scopeID", scopeID), zap.Error(err))
	}

	window, err = b.store.RecentByScope(ctx, scopeID, b.cfg.ScopeWindowLimit)
	if err != nil {
		return nil, err
	}

	// Repopulate only on a clean miss. During an outage a rebuild would
	// race the recovering cache with stale data.
	if miss && len(window) > 0 {
		if err := b.cache.ReplaceScopeWindow(ctx, scopeID, window); err != nil {
			b.logger.Warn("Failed to rebuild scope window",
				zap.Uint64("scopeID", scopeID), zap.Error(err))
		}
	}

	return window, nil
}

func (b *Builder) actorWindow(ctx context.Context, actorID, scopeID uint64) ([]*types.Event, error) {
	window, err := b.cache.ActorWindow(ctx, actorID, scopeID)
	if err == nil {
		return window, nil
	}

	miss := errors.Is(err, cache.ErrCacheMiss)
	if !miss {
		b.logger.Warn("Actor window cache read failed, using durable store",
			zap.Uint64("actorID", actorID), zap.Error(err))
	}

	window, err = b.store.RecentByActor(ctx, actorID, scopeID, b.cfg.ActorWindowLimit)
	if err != nil {
		return nil, err
	}

	if miss && len(window) > 0 {
		if err := b.cache.ReplaceActorWindow(ctx, actorID, scopeID, window); err != nil {
			b.logger.Warn("Failed to rebuild actor window",
				zap.Uint64("actorID", actorID), zap.Error(err))
		}
	}

	return window, nil
}

func (b *Builder) globalWindow(ctx context.Context, actorID uint64) ([]*types.Event, error) {
	window, err := b.cache.GlobalWindow(ctx, actorID)
	if err == nil {
		return window, nil
	}

	miss := errors.Is(err, cache.ErrCacheMiss)
	if !miss {
		b.logger.Warn("Global window cache read failed, using durable store",
			zap.Uint64("actorID", actorID), zap.Error(err))
	}

	window, err = b.store.RecentByActorGlobal(ctx, actorID, b.cfg.ActorWindowLimit)
	if err != nil {
		return nil, err
	}

	if miss && len(window) > 0 {
		if err := b.cache.ReplaceGlobalWindow(ctx, actorID, window); err != nil {
			b.logger.Warn("Failed to rebuild global window",
				zap.Uint64("actorID", actorID), zap.Error(err))
		}
	}

	return window, nil
}

// reputation loads the actor's reputation snapshot, creating the actor on
// first contact.
func (b *Builder) reputation(ctx context.Context, actorID, scopeID uint64, name string) (*types.ReputationSnapshot, error) {
	snapshot, err := b.cache.GetReputation(ctx, actorID, scopeID)
	if err == nil {
		return snapshot, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		b.logger.Warn("Reputation cache read failed, using durable store",
			zap.Uint64("actorID", actorID), zap.Error(err))
	}

	actor, err := b.store.GetOrCreateActor(ctx, actorID, scopeID, name)
	if err != nil {
		return nil, err
	}

	snapshot = actor.Snapshot()

	if err := b.cache.SetReputation(ctx, snapshot); err != nil {
		b.logger.Warn("Failed to repopulate reputation cache",
			zap.Uint64("actorID", actorID), zap.Error(err))
	}

	return snapshot, nil
}

// appendEvent folds the judged event into the cached windows and into the
// bundle's in-memory copies so the decision sees its own write. Cache append
// failures degrade to store-only; the event row is already durable.
func (b *Builder) appendEvent(ctx context.Context, bundle *ContextBundle) {
	event := bundle.Event

	if err := b.cache.AppendScopeEvent(ctx, event); err != nil {
		b.logger.Warn("Failed to append event to scope window",
			zap.String("eventID", event.ID), zap.Error(err))
	}

	if err := b.cache.AppendActorEvent(ctx, event); err != nil {
		b.logger.Warn("Failed to append event to actor window",
			zap.String("eventID", event.ID), zap.Error(err))
	}

	if err := b.cache.AppendGlobalEvent(ctx, event); err != nil {
		b.logger.Warn("Failed to append event to global window",
			zap.String("eventID", event.ID), zap.Error(err))
	}

	bundle.ScopeWindow = appendUnique(bundle.ScopeWindow, event, b.cfg.ScopeWindowLimit)
	bundle.ActorWindow = appendUnique(bundle.ActorWindow, event, b.cfg.ActorWindowLimit)
	bundle.GlobalWindow = appendUnique(bundle.GlobalWindow, event, b.cfg.ActorWindowLimit)
}

func appendUnique(window []*types.Event, event *types.Event, limit int) []*types.Event {
	for _, e := range window {
		if e.ID == event.ID {
			return window
		}
	}

	window = append(window, event)
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}

	return window
}
