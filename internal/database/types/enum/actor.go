package enum

// ActorState represents the moderation standing of an actor.
// States only move forward through violations and fall back to
// ActorStateNormal through decay; ActorStateBanned is terminal.
type ActorState int

const (
	// ActorStateNormal indicates an actor in good standing.
	ActorStateNormal ActorState = iota
	// ActorStateWarned indicates an actor with a recent violation.
	ActorStateWarned
	// ActorStateProbation indicates an actor one violation away from a ban.
	ActorStateProbation
	// ActorStateBanned indicates an actor removed from the scope. Terminal
	// except for an explicit external unban.
	ActorStateBanned
)

var actorStateNames = map[ActorState]string{
	ActorStateNormal:    "Normal",
	ActorStateWarned:    "Warned",
	ActorStateProbation: "Probation",
	ActorStateBanned:    "Banned",
}

func (s ActorState) String() string {
	if name, ok := actorStateNames[s]; ok {
		return name
	}

	return "Unknown"
}
