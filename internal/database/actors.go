package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chatwarden/warden/internal/database/dbretry"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ActorModel handles database operations for actor records.
type ActorModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewActorModel creates a new actor model repository.
func NewActorModel(db *bun.DB, logger *zap.Logger) *ActorModel {
	return &ActorModel{
		db:     db,
		logger: logger.Named("db_actors"),
	}
}

// Get fetches an actor by id within a scope.
func (m *ActorModel) Get(ctx context.Context, actorID, scopeID uint64) (*types.Actor, error) {
	var actor types.Actor

	err := dbretry.Do(ctx, func() error {
		return m.db.NewSelect().
			Model(&actor).
			Where("id = ?", actorID).
			Where("scope_id = ?", scopeID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrActorNotFound
		}

		return nil, fmt.Errorf("failed to get actor %d: %w", actorID, err)
	}

	return &actor, nil
}

// GetOrCreate fetches an actor, inserting a fresh record with the starting
// reputation on first contact. The insert is idempotent under concurrent
// first messages from the same actor.
func (m *ActorModel) GetOrCreate(ctx context.Context, actorID, scopeID uint64, name string) (*types.Actor, error) {
	now := time.Now()
	actor := &types.Actor{
		ID:         actorID,
		ScopeID:    scopeID,
		Name:       name,
		Reputation: types.ReputationStart,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := dbretry.Do(ctx, func() error {
		_, err := m.db.NewInsert().
			Model(actor).
			On("CONFLICT (id, scope_id) DO NOTHING").
			Exec(ctx)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert actor %d: %w", actorID, err)
	}

	return m.Get(ctx, actorID, scopeID)
}

// UpdateReputation persists the outcome of a reputation transition. The
// caller holds the per-actor lease, so a plain update is race-free.
func (m *ActorModel) UpdateReputation(ctx context.Context, actor *types.Actor) error {
	actor.UpdatedAt = time.Now()

	err := dbretry.Do(ctx, func() error {
		_, err := m.db.NewUpdate().
			Model(actor).
			Column("state", "reputation", "violation_count", "last_violation_at", "updated_at").
			Where("id = ?", actor.ID).
			Where("scope_id = ?", actor.ScopeID).
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update actor %d reputation: %w", actor.ID, err)
	}

	m.logger.Debug("Persisted reputation transition",
		zap.Uint64("actorID", actor.ID),
		zap.Uint64("scopeID", actor.ScopeID),
		zap.String("state", actor.State.String()),
		zap.Int("reputation", actor.Reputation))

	return nil
}
