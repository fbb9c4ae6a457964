package aggregator

import (
	"context"

	"github.com/chatwarden/warden/internal/database"
	"github.com/chatwarden/warden/internal/database/types"
)

// dbStore adapts the database client to the builder's read surface.
type dbStore struct {
	db database.Client
}

// NewStore wraps a database client as the builder's Store.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) ScopeConfig(ctx context.Context, scopeID uint64) (*types.ScopeConfig, error) {
	return s.db.Model().Scope().GetConfig(ctx, scopeID)
}

func (s *dbStore) InsertEvent(ctx context.Context, event *types.Event) error {
	return s.db.Model().Event().Insert(ctx, event)
}

func (s *dbStore) RecentByScope(ctx context.Context, scopeID uint64, limit int) ([]*types.Event, error) {
	return s.db.Model().Event().RecentByScope(ctx, scopeID, limit)
}

func (s *dbStore) RecentByActor(ctx context.Context, actorID, scopeID uint64, limit int) ([]*types.Event, error) {
	return s.db.Model().Event().RecentByActor(ctx, actorID, scopeID, limit)
}

func (s *dbStore) RecentByActorGlobal(ctx context.Context, actorID uint64, limit int) ([]*types.Event, error) {
	return s.db.Model().Event().RecentByActorGlobal(ctx, actorID, limit)
}

func (s *dbStore) GetOrCreateActor(ctx context.Context, actorID, scopeID uint64, name string) (*types.Actor, error) {
	return s.db.Model().Actor().GetOrCreate(ctx, actorID, scopeID, name)
}
