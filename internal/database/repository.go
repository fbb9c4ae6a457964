package database

import (
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all model repositories.
type Repository struct {
	actors *ActorModel
	scopes *ScopeModel
	events *EventModel
	audit  *AuditModel
}

// NewRepository creates a new repository with all model repositories.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		actors: NewActorModel(db, logger),
		scopes: NewScopeModel(db, logger),
		events: NewEventModel(db, logger),
		audit:  NewAuditModel(db, logger),
	}
}

// Actor returns the actor model repository.
func (r *Repository) Actor() *ActorModel {
	return r.actors
}

// Scope returns the scope model repository.
func (r *Repository) Scope() *ScopeModel {
	return r.scopes
}

// Event returns the event model repository.
func (r *Repository) Event() *EventModel {
	return r.events
}

// Audit returns the audit model repository.
func (r *Repository) Audit() *AuditModel {
	return r.audit
}
