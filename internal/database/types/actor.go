package types

import (
	"errors"
	"time"

	"github.com/chatwarden/warden/internal/database/types/enum"
)

var (
	ErrActorNotFound = errors.New("actor not found")
	ErrInvalidActor  = errors.New("invalid actor ID")
)

// ReputationStart is the score assigned to actors on first contact.
const ReputationStart = 100

// Actor represents a message sender whose behavior is scored per scope.
// Reputation fields are mutated only through verdict-driven transitions.
type Actor struct {
	ID              uint64          `bun:",pk"                    json:"id"`
	ScopeID         uint64          `bun:",pk"                    json:"scopeId"`
	Name            string          `bun:",notnull"               json:"name"`
	State           enum.ActorState `bun:",notnull,default:0"     json:"state"`
	Reputation      int             `bun:",notnull,default:100"   json:"reputation"`
	ViolationCount  int             `bun:",notnull,default:0"     json:"violationCount"`
	LastViolationAt time.Time       `bun:",nullzero"              json:"lastViolationAt"`
	IsBot           bool            `bun:",notnull,default:false" json:"isBot"`
	CreatedAt       time.Time       `bun:",notnull"               json:"createdAt"`
	UpdatedAt       time.Time       `bun:",notnull"               json:"updatedAt"`
}

// ReputationSnapshot is the cached subset of Actor consulted on the read path.
// It is immutable once placed in a ContextBundle; staleness is bounded by the
// cache TTL.
type ReputationSnapshot struct {
	ActorID         uint64          `json:"actorId"`
	ScopeID         uint64          `json:"scopeId"`
	State           enum.ActorState `json:"state"`
	Reputation      int             `json:"reputation"`
	ViolationCount  int             `json:"violationCount"`
	LastViolationAt time.Time       `json:"lastViolationAt"`
}

// Snapshot extracts the cacheable reputation view of an actor.
func (a *Actor) Snapshot() *ReputationSnapshot {
	return &ReputationSnapshot{
		ActorID:         a.ID,
		ScopeID:         a.ScopeID,
		State:           a.State,
		Reputation:      a.Reputation,
		ViolationCount:  a.ViolationCount,
		LastViolationAt: a.LastViolationAt,
	}
}
