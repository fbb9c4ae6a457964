package enum

// TreatmentType represents the punitive action derived from a reputation
// transition. A treatment is always recorded together with the transition
// that produced it.
type TreatmentType int

const (
	// TreatmentTypeNone indicates no action is taken.
	TreatmentTypeNone TreatmentType = iota
	// TreatmentTypeWarn posts a warning addressed to the actor.
	TreatmentTypeWarn
	// TreatmentTypeMute restricts the actor for a configured duration.
	TreatmentTypeMute
	// TreatmentTypeDeleteWarn removes the offending event and warns the actor.
	TreatmentTypeDeleteWarn
	// TreatmentTypeBan removes the actor from the scope.
	TreatmentTypeBan
)

var treatmentTypeNames = map[TreatmentType]string{
	TreatmentTypeNone:       "None",
	TreatmentTypeWarn:       "Warn",
	TreatmentTypeMute:       "Mute",
	TreatmentTypeDeleteWarn: "Delete+Warn",
	TreatmentTypeBan:        "Ban",
}

func (t TreatmentType) String() string {
	if name, ok := treatmentTypeNames[t]; ok {
		return name
	}

	return "Unknown"
}
