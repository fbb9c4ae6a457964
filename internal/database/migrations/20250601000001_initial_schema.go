package migrations

import (
	"context"
	"fmt"

	"github.com/chatwarden/warden/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		tables := []struct {
			model any
			name  string
		}{
			{(*types.Scope)(nil), "scopes"},
			{(*types.ScopeConfig)(nil), "scope_configs"},
			{(*types.Actor)(nil), "actors"},
			{(*types.Event)(nil), "events"},
			{(*types.DecisionAudit)(nil), "decision_audits"},
		}

		for _, table := range tables {
			_, err := db.NewCreateTable().
				Model(table.model).
				ModelTableExpr(table.name).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %s: %w", table.name, err)
			}
		}

		indexes := []struct {
			name    string
			table   string
			columns []string
		}{
			{"idx_events_scope_created", "events", []string{"scope_id", "created_at"}},
			{"idx_events_actor_scope_created", "events", []string{"actor_id", "scope_id", "created_at"}},
			{"idx_events_actor_created", "events", []string{"actor_id", "created_at"}},
			{"idx_audits_actor_scope", "decision_audits", []string{"actor_id", "scope_id"}},
			{"idx_audits_decided_at", "decision_audits", []string{"decided_at"}},
		}

		for _, idx := range indexes {
			q := db.NewCreateIndex().
				TableExpr(idx.table).
				Index(idx.name).
				IfNotExists()

			for _, col := range idx.columns {
				q = q.Column(col)
			}

			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{"decision_audits", "events", "actors", "scope_configs", "scopes"}

		for _, table := range tables {
			if _, err := db.NewDropTable().TableExpr(table).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}
