package types

import (
	"time"

	"github.com/chatwarden/warden/internal/database/types/enum"
)

// DecisionAudit records one verdict together with the reputation transition
// and treatment it produced. The verdict and the treatment are persisted as
// a single row so neither can be recorded without the other.
type DecisionAudit struct {
	ID               int64              `bun:",pk,autoincrement"      json:"id"`
	EventID          string             `bun:",notnull"               json:"eventId"`
	ScopeID          uint64             `bun:",notnull"               json:"scopeId"`
	ActorID          uint64             `bun:",notnull"               json:"actorId"`
	Status           enum.VerdictStatus `bun:",notnull"               json:"status"`
	Confidence       float64            `bun:",notnull"               json:"confidence"`
	Category         string             `bun:",notnull,default:''"    json:"category"`
	Reason           string             `bun:",notnull,default:''"    json:"reason"`
	StateBefore      enum.ActorState    `bun:",notnull"               json:"stateBefore"`
	StateAfter       enum.ActorState    `bun:",notnull"               json:"stateAfter"`
	Treatment        enum.TreatmentType `bun:",notnull"               json:"treatment"`
	TreatmentOK      bool               `bun:",notnull,default:false" json:"treatmentOk"`
	PointsDocked     int                `bun:",notnull,default:0"     json:"pointsDocked"`
	FinalReputation  int                `bun:",notnull,default:0"     json:"finalReputation"`
	DecidedAt        time.Time          `bun:",notnull"               json:"decidedAt"`
}
