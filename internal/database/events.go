package database

import (
	"context"
	"fmt"
	"time"

	"github.com/chatwarden/warden/internal/database/dbretry"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// EventModel handles database operations for chat events.
type EventModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewEventModel creates a new event model repository.
func NewEventModel(db *bun.DB, logger *zap.Logger) *EventModel {
	return &EventModel{
		db:     db,
		logger: logger.Named("db_events"),
	}
}

// Insert persists an inbound event. Duplicate event ids are ignored so
// transport redeliveries never produce duplicate rows.
func (m *EventModel) Insert(ctx context.Context, event *types.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	err := dbretry.Do(ctx, func() error {
		_, err := m.db.NewInsert().
			Model(event).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}

	return nil
}

// RecentByScope returns the newest events in a scope, oldest first, capped
// at limit. This is the durable fallback for the scope activity window.
func (m *EventModel) RecentByScope(ctx context.Context, scopeID uint64, limit int) ([]*types.Event, error) {
	events, err := m.recent(ctx, limit, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("scope_id = ?", scopeID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events for scope %d: %w", scopeID, err)
	}

	return events, nil
}

// RecentByActor returns the newest events by an actor within a scope,
// oldest first, capped at limit.
func (m *EventModel) RecentByActor(ctx context.Context, actorID, scopeID uint64, limit int) ([]*types.Event, error) {
	events, err := m.recent(ctx, limit, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("actor_id = ?", actorID).Where("scope_id = ?", scopeID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events for actor %d: %w", actorID, err)
	}

	return events, nil
}

// RecentByActorGlobal returns the newest events by an actor across all
// scopes, oldest first, capped at limit.
func (m *EventModel) RecentByActorGlobal(ctx context.Context, actorID uint64, limit int) ([]*types.Event, error) {
	events, err := m.recent(ctx, limit, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("actor_id = ?", actorID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get global events for actor %d: %w", actorID, err)
	}

	return events, nil
}

// MarkProcessed records an enrichment summary against an event.
func (m *EventModel) MarkProcessed(ctx context.Context, eventID, summary string) error {
	err := dbretry.Do(ctx, func() error {
		_, err := m.db.NewUpdate().
			Model((*types.Event)(nil)).
			Set("processed = true").
			Set("summary = ?", summary).
			Where("id = ?", eventID).
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark event %s processed: %w", eventID, err)
	}

	return nil
}

// DeleteOlderThan removes events created before the cutoff. Used by the
// cleanup worker; returns the number of rows removed.
func (m *EventModel) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64

	err := dbretry.Do(ctx, func() error {
		res, err := m.db.NewDelete().
			Model((*types.Event)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return err
		}

		deleted, _ = res.RowsAffected()

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete events before %s: %w", cutoff, err)
	}

	if deleted > 0 {
		m.logger.Info("Purged old events", zap.Int64("deleted", deleted))
	}

	return deleted, nil
}

func (m *EventModel) recent(
	ctx context.Context, limit int, filter func(*bun.SelectQuery) *bun.SelectQuery,
) ([]*types.Event, error) {
	var events []*types.Event

	err := dbretry.Do(ctx, func() error {
		return filter(m.db.NewSelect().Model(&events)).
			Order("created_at DESC").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}

	// Reverse to oldest-first so windows append naturally
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	return events, nil
}
