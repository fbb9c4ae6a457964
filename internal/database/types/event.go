package types

import (
	"time"
)

// Event represents one inbound chat message or action to be moderated.
// Events are append-only; enrichment results are written by workers after
// the moderation decision has been made.
type Event struct {
	ID        string    `bun:",pk"                    json:"id"`
	ScopeID   uint64    `bun:",notnull"               json:"scopeId"`
	ActorID   uint64    `bun:",notnull"               json:"actorId"`
	Kind      string    `bun:",notnull,default:'text'" json:"kind"`
	Text      string    `bun:",notnull,default:''"    json:"text"`
	Summary   string    `bun:",notnull,default:''"    json:"summary"`
	Processed bool      `bun:",notnull,default:false" json:"processed"`
	CreatedAt time.Time `bun:",notnull"               json:"createdAt"`
}
