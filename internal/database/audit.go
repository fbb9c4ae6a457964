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

// AuditModel handles database operations for decision audit records.
type AuditModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAuditModel creates a new audit model repository.
func NewAuditModel(db *bun.DB, logger *zap.Logger) *AuditModel {
	return &AuditModel{
		db:     db,
		logger: logger.Named("db_audit"),
	}
}

// Insert records a decision. The verdict and its treatment land in one row,
// in one statement, so neither can be recorded without the other.
func (m *AuditModel) Insert(ctx context.Context, audit *types.DecisionAudit) error {
	if audit.DecidedAt.IsZero() {
		audit.DecidedAt = time.Now()
	}

	err := dbretry.Do(ctx, func() error {
		_, err := m.db.NewInsert().Model(audit).Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert decision audit for event %s: %w", audit.EventID, err)
	}

	return nil
}

// DeleteOlderThan removes audit rows older than the cutoff.
func (m *AuditModel) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64

	err := dbretry.Do(ctx, func() error {
		res, err := m.db.NewDelete().
			Model((*types.DecisionAudit)(nil)).
			Where("decided_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return err
		}

		deleted, _ = res.RowsAffected()

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete audits before %s: %w", cutoff, err)
	}

	if deleted > 0 {
		m.logger.Info("Purged old decision audits", zap.Int64("deleted", deleted))
	}

	return deleted, nil
}
