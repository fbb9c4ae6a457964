package reputation

import (
	"github.com/chatwarden/warden/internal/database/types/enum"
)

// Verdict is the classifier output for one event. Verdicts are ephemeral
// inputs; they are persisted for audit but never mutated.
type Verdict struct {
	Status     enum.VerdictStatus   `json:"status"`
	Confidence float64              `json:"confidence"`
	Category   enum.VerdictCategory `json:"category"`
	Reason     string               `json:"reason"`
}

// CleanVerdict is the verdict used when the classifier finds nothing wrong.
func CleanVerdict(confidence float64) Verdict {
	return Verdict{Status: enum.VerdictStatusClean, Confidence: confidence}
}

// UnknownVerdict is the conservative verdict substituted when the classifier
// times out or fails. It never escalates reputation state.
func UnknownVerdict(reason string) Verdict {
	return Verdict{Status: enum.VerdictStatusUnknown, Reason: reason}
}

// Actionable reports whether the verdict is spam with enough confidence to
// drive an escalation under the given threshold.
func (v Verdict) Actionable(threshold float64) bool {
	return v.Status == enum.VerdictStatusSpam && v.Confidence >= threshold
}
