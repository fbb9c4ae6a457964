package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatwarden/warden/internal/aggregator"
	"github.com/chatwarden/warden/internal/cache"
	"github.com/chatwarden/warden/internal/database"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/database/types/enum"
	"github.com/chatwarden/warden/internal/queue"
	"github.com/chatwarden/warden/internal/reputation"
	"github.com/chatwarden/warden/internal/setup/config"
	"go.uber.org/zap"
)

// ErrConcurrentModification indicates another decision for the same actor
// held the lease through the retry. The caller should redeliver the event so
// it is judged against the updated reputation.
var ErrConcurrentModification = errors.New("concurrent modification for actor")

// featureModeration gates automatic decisions per scope.
const featureModeration = "moderation"

// Decision is the outcome of judging one event.
type Decision struct {
	Verdict   reputation.Verdict
	Outcome   reputation.Outcome
	Bundle    *aggregator.ContextBundle
	Treatment enum.TreatmentType
	// TreatmentOK reports whether the transport applied the treatment.
	TreatmentOK bool
}

// Orchestrator drives the full decision pipeline for one event: assemble
// context, classify, transition reputation, persist, treat, audit, and
// enqueue enrichment. Decisions for the same (actor, scope) are serialized
// by a short lease; everything else runs concurrently.
type Orchestrator struct {
	db         database.Client
	cache      *cache.Cache
	lock       *cache.ActorLock
	builder    *aggregator.Builder
	engine     *reputation.Engine
	classifier Classifier
	transport  Transport
	queue      *queue.Client
	cfg        *config.Moderation
	timeout    time.Duration
	logger     *zap.Logger
}

// NewOrchestrator wires the decision pipeline. Transport may be nil when the
// coordinator runs without a chat connection; treatments are then recorded
// but not applied.
func NewOrchestrator(
	db database.Client,
	c *cache.Cache,
	lock *cache.ActorLock,
	builder *aggregator.Builder,
	engine *reputation.Engine,
	classifier Classifier,
	transport Transport,
	q *queue.Client,
	cfg *config.CommonConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		db:         db,
		cache:      c,
		lock:       lock,
		builder:    builder,
		engine:     engine,
		classifier: classifier,
		transport:  transport,
		queue:      q,
		cfg:        &cfg.Moderation,
		timeout:    time.Duration(cfg.Classifier.RequestTimeout) * time.Millisecond,
		logger:     logger.Named("orchestrator"),
	}
}

// Decide judges one event end to end. The actor lease covers the
// read-transition-write window so interleaved decisions for one actor always
// observe each other's state. Classifier failures produce an Unknown verdict
// rather than an error; treatment and enqueue failures are recorded and
// logged but never roll the decision back.
func (o *Orchestrator) Decide(ctx context.Context, event *types.Event, actorName string) (*Decision, error) {
	release, err := o.lock.Acquire(ctx, event.ActorID, event.ScopeID)
	if err != nil {
		if errors.Is(err, cache.ErrLockContended) {
			return nil, fmt.Errorf("%w %d in scope %d", ErrConcurrentModification, event.ActorID, event.ScopeID)
		}

		return nil, err
	}
	defer release()

	bundle, err := o.builder.Build(ctx, event, actorName)
	if err != nil {
		return nil, err
	}

	verdict := o.classify(ctx, bundle)

	threshold := bundle.ScopeConfig.ConfidenceThreshold
	if threshold <= 0 {
		threshold = o.cfg.DefaultThreshold
	}

	now := time.Now()
	outcome := o.engine.Transition(bundle.Reputation, verdict, threshold, now)

	if outcome.Changed(bundle.Reputation) {
		if err := o.persist(ctx, bundle, outcome); err != nil {
			return nil, err
		}
	}

	decision := &Decision{
		Verdict:   verdict,
		Outcome:   outcome,
		Bundle:    bundle,
		Treatment: outcome.Treatment,
	}

	decision.TreatmentOK = o.treat(ctx, event, outcome)

	o.audit(ctx, bundle, decision, now)
	o.enqueueEnrichment(ctx, event)

	o.logger.Info("Decided event",
		zap.String("eventID", event.ID),
		zap.Uint64("actorID", event.ActorID),
		zap.Uint64("scopeID", event.ScopeID),
		zap.String("status", verdict.Status.String()),
		zap.String("treatment", outcome.Treatment.String()),
		zap.Int("reputation", outcome.Reputation))

	return decision, nil
}

// classify runs the classifier under a bounded timeout. Any failure maps to
// the Unknown verdict, which never escalates reputation state.
func (o *Orchestrator) classify(ctx context.Context, bundle *aggregator.ContextBundle) reputation.Verdict {
	if !bundle.ScopeConfig.FeatureEnabled(featureModeration) {
		return reputation.UnknownVerdict("moderation disabled for scope")
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	verdict, err := o.classifier.Classify(callCtx, bundle)
	if err != nil {
		o.logger.Warn("Classifier failed, substituting unknown verdict",
			zap.String("eventID", bundle.Event.ID),
			zap.Error(err))

		return reputation.UnknownVerdict(err.Error())
	}

	return verdict
}

// persist writes the transition to the durable store, then drops the cached
// snapshot. A failed invalidation leaves a stale snapshot bounded by its TTL;
// the store write is what must not fail.
func (o *Orchestrator) persist(ctx context.Context, bundle *aggregator.ContextBundle, outcome reputation.Outcome) error {
	actor := &types.Actor{
		ID:              bundle.Reputation.ActorID,
		ScopeID:         bundle.Reputation.ScopeID,
		State:           outcome.State,
		Reputation:      outcome.Reputation,
		ViolationCount:  outcome.ViolationCount,
		LastViolationAt: outcome.LastViolationAt,
	}

	if err := o.db.Model().Actor().UpdateReputation(ctx, actor); err != nil {
		return err
	}

	if err := o.cache.InvalidateReputation(ctx, actor.ID, actor.ScopeID); err != nil {
		o.logger.Warn("Failed to invalidate reputation cache",
			zap.Uint64("actorID", actor.ID),
			zap.Uint64("scopeID", actor.ScopeID),
			zap.Error(err))
	}

	return nil
}

// treat applies the outcome's treatment through the transport. Failures are
// logged and reflected in the audit row; the reputation transition stands.
func (o *Orchestrator) treat(ctx context.Context, event *types.Event, outcome reputation.Outcome) bool {
	if outcome.Treatment == enum.TreatmentTypeNone {
		return true
	}

	if o.transport == nil {
		o.logger.Warn("No transport configured, treatment not applied",
			zap.String("eventID", event.ID),
			zap.String("treatment", outcome.Treatment.String()))

		return false
	}

	var err error

	switch outcome.Treatment {
	case enum.TreatmentTypeDeleteWarn:
		if err = o.transport.Delete(ctx, event.ScopeID, event.ID); err == nil {
			err = o.transport.Warn(ctx, event.ScopeID, event.ActorID, "message removed for violating scope rules")
		}
	case enum.TreatmentTypeWarn:
		err = o.transport.Warn(ctx, event.ScopeID, event.ActorID, "violation recorded")
	case enum.TreatmentTypeMute:
		err = o.transport.Mute(ctx, event.ScopeID, event.ActorID, outcome.MuteDuration)
	case enum.TreatmentTypeBan:
		err = o.transport.Ban(ctx, event.ScopeID, event.ActorID)
	}

	if err != nil {
		o.logger.Error("Treatment failed",
			zap.String("eventID", event.ID),
			zap.Uint64("actorID", event.ActorID),
			zap.String("treatment", outcome.Treatment.String()),
			zap.Error(err))

		return false
	}

	return true
}

// audit records the verdict and its consequences in one row.
func (o *Orchestrator) audit(ctx context.Context, bundle *aggregator.ContextBundle, decision *Decision, now time.Time) {
	row := &types.DecisionAudit{
		EventID:         bundle.Event.ID,
		ScopeID:         bundle.Event.ScopeID,
		ActorID:         bundle.Event.ActorID,
		Status:          decision.Verdict.Status,
		Confidence:      decision.Verdict.Confidence,
		Category:        decision.Verdict.Category.String(),
		Reason:          decision.Verdict.Reason,
		StateBefore:     bundle.Reputation.State,
		StateAfter:      decision.Outcome.State,
		Treatment:       decision.Outcome.Treatment,
		TreatmentOK:     decision.TreatmentOK,
		PointsDocked:    decision.Outcome.PointsDocked,
		FinalReputation: decision.Outcome.Reputation,
		DecidedAt:       now,
	}

	if err := o.db.Model().Audit().Insert(ctx, row); err != nil {
		o.logger.Error("Failed to record decision audit",
			zap.String("eventID", bundle.Event.ID),
			zap.Error(err))
	}
}

// enqueueEnrichment hands the decided event to the enrichment workers.
// Failures never fail the decision; enrichment is advisory.
func (o *Orchestrator) enqueueEnrichment(ctx context.Context, event *types.Event) {
	job := queue.EnrichmentJob{
		EventID: event.ID,
		ScopeID: event.ScopeID,
		ActorID: event.ActorID,
		Text:    event.Text,
	}

	for _, topic := range []string{queue.TopicEmbeddings, queue.TopicIngest} {
		if _, err := o.queue.Enqueue(ctx, topic, job); err != nil {
			o.logger.Warn("Failed to enqueue enrichment job",
				zap.String("eventID", event.ID),
				zap.String("topic", topic),
				zap.Error(err))
		}
	}
}
