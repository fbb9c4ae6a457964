package reputation

import (
	"math"
	"time"

	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/database/types/enum"
	"github.com/chatwarden/warden/internal/setup/config"
)

// Score bounds. State is the authoritative signal for treatment; the score
// is a secondary metric for reporting and threshold tuning.
const (
	MinScore = 0
	MaxScore = 100
)

// categoryPenalty holds the base cost per violation category before
// confidence scaling.
var categoryPenalty = map[enum.VerdictCategory]int{
	enum.VerdictCategoryGeneric:   5,
	enum.VerdictCategoryPromo:     5,
	enum.VerdictCategoryOffTopic:  5,
	enum.VerdictCategoryLinkFlood: 10,
	enum.VerdictCategoryHarmful:   30,
	enum.VerdictCategoryScam:      30,
	enum.VerdictCategoryNSFW:      30,
}

// Outcome is the result of applying one verdict to an actor's reputation.
type Outcome struct {
	State           enum.ActorState
	Treatment       enum.TreatmentType
	Reputation      int
	PointsDocked    int
	ViolationCount  int
	LastViolationAt time.Time
	// MuteDuration is set only when Treatment is Mute.
	MuteDuration time.Duration
}

// Changed reports whether the transition altered the persisted actor fields.
func (o Outcome) Changed(before *types.ReputationSnapshot) bool {
	return o.State != before.State ||
		o.Reputation != before.Reputation ||
		o.ViolationCount != before.ViolationCount ||
		!o.LastViolationAt.Equal(before.LastViolationAt)
}

// Engine maps a verdict and prior reputation into a new reputation and a
// treatment. Transition is a pure function; persistence and side effects
// belong to the orchestrator.
type Engine struct {
	escalationPenalty int
	recoveryPoints    int
	decayInterval     time.Duration
	muteDuration      time.Duration
}

// NewEngine builds an engine from moderation config.
func NewEngine(cfg *config.Moderation) *Engine {
	return &Engine{
		escalationPenalty: cfg.EscalationPenalty,
		recoveryPoints:    cfg.RecoveryPoints,
		decayInterval:     time.Duration(cfg.DecayInterval) * time.Minute,
		muteDuration:      time.Duration(cfg.MuteDuration) * time.Minute,
	}
}

// Transition applies the state machine to one verdict:
//
//	Normal    + spam  -> Warned     Delete+Warn
//	Warned    + spam  -> Probation  Mute
//	Probation + spam  -> Banned     Ban
//	Warned/Probation + clean after the decay interval -> Normal, None
//	Banned    + any   -> Banned     None
//
// Unknown verdicts never move state. Any violation resets the decay timer;
// credited recovery advances it, so an elapsed interval is counted once.
func (e *Engine) Transition(
	before *types.ReputationSnapshot, verdict Verdict, threshold float64, now time.Time,
) Outcome {
	outcome := Outcome{
		State:           before.State,
		Reputation:      before.Reputation,
		ViolationCount:  before.ViolationCount,
		LastViolationAt: before.LastViolationAt,
		Treatment:       enum.TreatmentTypeNone,
	}

	// Banned is terminal; only an explicit external unban leaves it.
	if before.State == enum.ActorStateBanned {
		return outcome
	}

	// Unknown is the fail-open path: no escalation, no decay credit.
	if verdict.Status == enum.VerdictStatusUnknown {
		return outcome
	}

	if verdict.Actionable(threshold) {
		return e.escalate(outcome, verdict, now)
	}

	return e.recover(outcome, now)
}

func (e *Engine) escalate(outcome Outcome, verdict Verdict, now time.Time) Outcome {
	outcome.PointsDocked = e.penalty(verdict)
	outcome.Reputation = clamp(outcome.Reputation - outcome.PointsDocked)
	outcome.ViolationCount++
	outcome.LastViolationAt = now

	switch outcome.State {
	case enum.ActorStateNormal:
		outcome.State = enum.ActorStateWarned
		outcome.Treatment = enum.TreatmentTypeDeleteWarn
	case enum.ActorStateWarned:
		outcome.State = enum.ActorStateProbation
		outcome.Treatment = enum.TreatmentTypeMute
		outcome.MuteDuration = e.muteDuration
	case enum.ActorStateProbation:
		outcome.State = enum.ActorStateBanned
		outcome.Treatment = enum.TreatmentTypeBan
	}

	return outcome
}

func (e *Engine) recover(outcome Outcome, now time.Time) Outcome {
	if outcome.LastViolationAt.IsZero() || e.decayInterval <= 0 {
		return outcome
	}

	elapsed := now.Sub(outcome.LastViolationAt)
	if elapsed < e.decayInterval {
		return outcome
	}

	intervals := int(elapsed / e.decayInterval)
	outcome.Reputation = clamp(outcome.Reputation + intervals*e.recoveryPoints)

	// Advance the baseline past the credited intervals so the next clean
	// verdict cannot earn credit for the same elapsed time again.
	outcome.LastViolationAt = outcome.LastViolationAt.Add(time.Duration(intervals) * e.decayInterval)

	if outcome.State == enum.ActorStateWarned || outcome.State == enum.ActorStateProbation {
		outcome.State = enum.ActorStateNormal
	}

	return outcome
}

// penalty scales the category base cost by confidence and never docks less
// than the configured escalation penalty.
func (e *Engine) penalty(verdict Verdict) int {
	base, ok := categoryPenalty[verdict.Category]
	if !ok {
		base = categoryPenalty[enum.VerdictCategoryGeneric]
	}

	scaled := int(math.Ceil(float64(base) * math.Max(verdict.Confidence, 0.5)))
	if scaled < e.escalationPenalty {
		return e.escalationPenalty
	}

	return scaled
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}

	if score > MaxScore {
		return MaxScore
	}

	return score
}
