package moderation

import (
	"context"
	"time"

	"github.com/chatwarden/warden/internal/aggregator"
	"github.com/chatwarden/warden/internal/reputation"
)

// Classifier judges one event given its context bundle. Implementations are
// expected to be slow and fallible; the orchestrator bounds each call with a
// timeout and substitutes an Unknown verdict on failure.
type Classifier interface {
	Classify(ctx context.Context, bundle *aggregator.ContextBundle) (reputation.Verdict, error)
}

// Transport executes treatments against the chat platform. Implementations
// must be idempotent: redelivered decisions may replay a treatment.
type Transport interface {
	// Delete removes the offending message.
	Delete(ctx context.Context, scopeID uint64, eventID string) error
	// Warn notifies the actor about the violation.
	Warn(ctx context.Context, scopeID, actorID uint64, reason string) error
	// Mute silences the actor for the given duration.
	Mute(ctx context.Context, scopeID, actorID uint64, d time.Duration) error
	// Ban permanently removes the actor from the scope.
	Ban(ctx context.Context, scopeID, actorID uint64) error
}
