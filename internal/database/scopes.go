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

// ScopeModel handles database operations for scopes and their moderation
// configuration.
type ScopeModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewScopeModel creates a new scope model repository.
func NewScopeModel(db *bun.DB, logger *zap.Logger) *ScopeModel {
	return &ScopeModel{
		db:     db,
		logger: logger.Named("db_scopes"),
	}
}

// Get fetches a scope by id.
func (m *ScopeModel) Get(ctx context.Context, scopeID uint64) (*types.Scope, error) {
	var scope types.Scope

	err := dbretry.Do(ctx, func() error {
		return m.db.NewSelect().
			Model(&scope).
			Where("id = ?", scopeID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrScopeNotFound
		}

		return nil, fmt.Errorf("failed to get scope %d: %w", scopeID, err)
	}

	return &scope, nil
}

// GetConfig fetches the moderation configuration for a scope. Scopes that
// exist without a config have never completed initialization.
func (m *ScopeModel) GetConfig(ctx context.Context, scopeID uint64) (*types.ScopeConfig, error) {
	var cfg types.ScopeConfig

	err := dbretry.Do(ctx, func() error {
		return m.db.NewSelect().
			Model(&cfg).
			Where("scope_id = ?", scopeID).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrScopeNotFound
		}

		return nil, fmt.Errorf("failed to get scope config %d: %w", scopeID, err)
	}

	return &cfg, nil
}

// Upsert creates or updates a scope record.
func (m *ScopeModel) Upsert(ctx context.Context, scope *types.Scope) error {
	scope.UpdatedAt = time.Now()
	if scope.CreatedAt.IsZero() {
		scope.CreatedAt = scope.UpdatedAt
	}

	err := dbretry.Do(ctx, func() error {
		_, err := m.db.NewInsert().
			Model(scope).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("description = EXCLUDED.description").
			Set("has_config = EXCLUDED.has_config").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert scope %d: %w", scope.ID, err)
	}

	return nil
}

// UpsertConfig creates or updates the moderation configuration for a scope
// and marks the scope as configured.
func (m *ScopeModel) UpsertConfig(ctx context.Context, cfg *types.ScopeConfig) error {
	cfg.UpdatedAt = time.Now()

	err := dbretry.Do(ctx, func() error {
		return m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewInsert().
				Model(cfg).
				On("CONFLICT (scope_id) DO UPDATE").
				Set("confidence_threshold = EXCLUDED.confidence_threshold").
				Set("rules_text = EXCLUDED.rules_text").
				Set("features_enabled = EXCLUDED.features_enabled").
				Set("personality = EXCLUDED.personality").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return err
			}

			_, err := tx.NewUpdate().
				Model((*types.Scope)(nil)).
				Set("has_config = true").
				Set("updated_at = ?", cfg.UpdatedAt).
				Where("id = ?", cfg.ScopeID).
				Exec(ctx)

			return err
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert scope config %d: %w", cfg.ScopeID, err)
	}

	m.logger.Info("Updated scope config", zap.Uint64("scopeID", cfg.ScopeID))

	return nil
}
