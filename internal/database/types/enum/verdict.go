package enum

// VerdictStatus represents the classifier's judgment of an event.
type VerdictStatus int

const (
	// VerdictStatusClean indicates the event is acceptable.
	VerdictStatusClean VerdictStatus = iota
	// VerdictStatusSpam indicates the event violates scope rules.
	VerdictStatusSpam
	// VerdictStatusUnknown indicates the classifier failed or timed out.
	// Unknown never escalates reputation state.
	VerdictStatusUnknown
)

var verdictStatusNames = map[VerdictStatus]string{
	VerdictStatusClean:   "Clean",
	VerdictStatusSpam:    "Spam",
	VerdictStatusUnknown: "Unknown",
}

func (v VerdictStatus) String() string {
	if name, ok := verdictStatusNames[v]; ok {
		return name
	}

	return "Unknown"
}

// VerdictCategory classifies the kind of violation the classifier detected.
type VerdictCategory int

const (
	// VerdictCategoryGeneric covers violations without a specific category.
	VerdictCategoryGeneric VerdictCategory = iota
	// VerdictCategoryPromo covers unsolicited promotion.
	VerdictCategoryPromo
	// VerdictCategoryOffTopic covers content unrelated to the scope.
	VerdictCategoryOffTopic
	// VerdictCategoryLinkFlood covers repeated link posting.
	VerdictCategoryLinkFlood
	// VerdictCategoryHarmful covers abusive or dangerous content.
	VerdictCategoryHarmful
	// VerdictCategoryScam covers fraudulent content.
	VerdictCategoryScam
	// VerdictCategoryNSFW covers sexually explicit content.
	VerdictCategoryNSFW
)

var verdictCategoryNames = map[VerdictCategory]string{
	VerdictCategoryGeneric:   "generic",
	VerdictCategoryPromo:     "promo",
	VerdictCategoryOffTopic:  "off-topic",
	VerdictCategoryLinkFlood: "link-flood",
	VerdictCategoryHarmful:   "harmful",
	VerdictCategoryScam:      "scam",
	VerdictCategoryNSFW:      "nsfw",
}

func (c VerdictCategory) String() string {
	if name, ok := verdictCategoryNames[c]; ok {
		return name
	}

	return "generic"
}

// ParseVerdictCategory maps a classifier category label to its enum value.
// Unrecognized labels fall back to VerdictCategoryGeneric.
func ParseVerdictCategory(label string) VerdictCategory {
	for category, name := range verdictCategoryNames {
		if name == label {
			return category
		}
	}

	return VerdictCategoryGeneric
}
