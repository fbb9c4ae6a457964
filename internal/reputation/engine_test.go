package reputation_test

import (
	"testing"
	"time"

	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/database/types/enum"
	"github.com/chatwarden/warden/internal/reputation"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testThreshold = 0.7

func newTestEngine(t *testing.T) *reputation.Engine {
	t.Helper()

	return reputation.NewEngine(&config.Moderation{
		DefaultThreshold:  testThreshold,
		EscalationPenalty: 5,
		RecoveryPoints:    5,
		DecayInterval:     60,
		MuteDuration:      30,
	})
}

func snapshot(state enum.ActorState, rep int) *types.ReputationSnapshot {
	return &types.ReputationSnapshot{
		ActorID:    123,
		ScopeID:    456,
		State:      state,
		Reputation: rep,
	}
}

func spamVerdict(confidence float64, category enum.VerdictCategory) reputation.Verdict {
	return reputation.Verdict{
		Status:     enum.VerdictStatusSpam,
		Confidence: confidence,
		Category:   category,
	}
}

func TestTransitionEscalationChain(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	before := snapshot(enum.ActorStateNormal, 100)
	verdict := spamVerdict(1.0, enum.VerdictCategoryScam)

	// Normal -> Warned with Delete+Warn
	outcome := engine.Transition(before, verdict, testThreshold, now)
	assert.Equal(t, enum.ActorStateWarned, outcome.State)
	assert.Equal(t, enum.TreatmentTypeDeleteWarn, outcome.Treatment)
	assert.Equal(t, 70, outcome.Reputation)
	assert.Equal(t, 1, outcome.ViolationCount)
	assert.Equal(t, now, outcome.LastViolationAt)

	// Warned -> Probation with Mute
	before.State = outcome.State
	before.Reputation = outcome.Reputation
	before.ViolationCount = outcome.ViolationCount
	before.LastViolationAt = outcome.LastViolationAt

	outcome = engine.Transition(before, verdict, testThreshold, now.Add(time.Minute))
	assert.Equal(t, enum.ActorStateProbation, outcome.State)
	assert.Equal(t, enum.TreatmentTypeMute, outcome.Treatment)
	assert.Equal(t, 30*time.Minute, outcome.MuteDuration)
	assert.Equal(t, 40, outcome.Reputation)

	// Probation -> Banned with Ban
	before.State = outcome.State
	before.Reputation = outcome.Reputation
	before.ViolationCount = outcome.ViolationCount

	outcome = engine.Transition(before, verdict, testThreshold, now.Add(2*time.Minute))
	assert.Equal(t, enum.ActorStateBanned, outcome.State)
	assert.Equal(t, enum.TreatmentTypeBan, outcome.Treatment)
	assert.Equal(t, 3, outcome.ViolationCount)
}

func TestTransitionBannedIsTerminal(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	before := snapshot(enum.ActorStateBanned, 0)

	outcome := engine.Transition(before, spamVerdict(1.0, enum.VerdictCategoryScam), testThreshold, time.Now())
	assert.Equal(t, enum.ActorStateBanned, outcome.State)
	assert.Equal(t, enum.TreatmentTypeNone, outcome.Treatment)
	assert.Equal(t, 0, outcome.Reputation)
	assert.False(t, outcome.Changed(before))

	outcome = engine.Transition(before, reputation.CleanVerdict(0.9), testThreshold, time.Now())
	assert.Equal(t, enum.ActorStateBanned, outcome.State)
	assert.False(t, outcome.Changed(before))
}

func TestTransitionUnknownNeverEscalates(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)

	for _, state := range []enum.ActorState{
		enum.ActorStateNormal, enum.ActorStateWarned, enum.ActorStateProbation,
	} {
		before := snapshot(state, 50)
		before.LastViolationAt = time.Now().Add(-48 * time.Hour)

		outcome := engine.Transition(before, reputation.UnknownVerdict("classifier timeout"), testThreshold, time.Now())
		assert.Equal(t, state, outcome.State)
		assert.Equal(t, enum.TreatmentTypeNone, outcome.Treatment)
		// Unknown earns no decay credit either
		assert.Equal(t, 50, outcome.Reputation)
	}
}

func TestTransitionBelowThresholdRecovers(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	before := snapshot(enum.ActorStateWarned, 70)
	before.ViolationCount = 1
	before.LastViolationAt = now.Add(-2 * time.Hour)

	// Spam below threshold is not actionable; the clean path applies.
	outcome := engine.Transition(before, spamVerdict(0.4, enum.VerdictCategoryPromo), testThreshold, now)
	assert.Equal(t, enum.ActorStateNormal, outcome.State)
	assert.Equal(t, enum.TreatmentTypeNone, outcome.Treatment)
	// Two elapsed hour intervals at 5 points each
	assert.Equal(t, 80, outcome.Reputation)
}

func TestTransitionDecayRequiresFullInterval(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	before := snapshot(enum.ActorStateWarned, 70)
	before.ViolationCount = 1
	before.LastViolationAt = now.Add(-30 * time.Minute)

	outcome := engine.Transition(before, reputation.CleanVerdict(0.9), testThreshold, now)
	assert.Equal(t, enum.ActorStateWarned, outcome.State)
	assert.Equal(t, 70, outcome.Reputation)
	assert.False(t, outcome.Changed(before))
}

func TestTransitionRecoveryCreditedOnce(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	before := snapshot(enum.ActorStateWarned, 10)
	before.ViolationCount = 1
	before.LastViolationAt = now.Add(-2 * time.Hour)

	// Two elapsed hour intervals at 5 points each
	outcome := engine.Transition(before, reputation.CleanVerdict(0.9), testThreshold, now)
	require.Equal(t, enum.ActorStateNormal, outcome.State)
	require.Equal(t, 20, outcome.Reputation)
	// The baseline moves past the credited intervals
	assert.Equal(t, now, outcome.LastViolationAt)

	// A clean verdict moments later finds no new interval to credit.
	before.State = outcome.State
	before.Reputation = outcome.Reputation
	before.LastViolationAt = outcome.LastViolationAt

	outcome = engine.Transition(before, reputation.CleanVerdict(0.9), testThreshold, now.Add(time.Second))
	assert.Equal(t, 20, outcome.Reputation)
	assert.False(t, outcome.Changed(before))
}

func TestTransitionRecoveryKeepsPartialProgress(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	before := snapshot(enum.ActorStateWarned, 10)
	before.ViolationCount = 1
	before.LastViolationAt = now.Add(-90 * time.Minute)

	// One full interval credited; the half-elapsed one stays in progress.
	outcome := engine.Transition(before, reputation.CleanVerdict(0.9), testThreshold, now)
	require.Equal(t, 15, outcome.Reputation)
	assert.Equal(t, now.Add(-30*time.Minute), outcome.LastViolationAt)

	// Thirty minutes later the second interval completes and is credited.
	before.State = outcome.State
	before.Reputation = outcome.Reputation
	before.LastViolationAt = outcome.LastViolationAt

	outcome = engine.Transition(before, reputation.CleanVerdict(0.9), testThreshold, now.Add(30*time.Minute))
	assert.Equal(t, 20, outcome.Reputation)
}

func TestTransitionProbationDecaysToNormal(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	before := snapshot(enum.ActorStateProbation, 40)
	before.ViolationCount = 2
	before.LastViolationAt = now.Add(-90 * time.Minute)

	outcome := engine.Transition(before, reputation.CleanVerdict(0.8), testThreshold, now)
	assert.Equal(t, enum.ActorStateNormal, outcome.State)
	assert.Equal(t, 45, outcome.Reputation)
	// Violation history is retained through decay
	assert.Equal(t, 2, outcome.ViolationCount)
}

func TestTransitionViolationResetsDecayTimer(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	before := snapshot(enum.ActorStateWarned, 70)
	before.ViolationCount = 1
	before.LastViolationAt = now.Add(-59 * time.Minute)

	outcome := engine.Transition(before, spamVerdict(0.9, enum.VerdictCategoryPromo), testThreshold, now)
	require.Equal(t, enum.ActorStateProbation, outcome.State)
	assert.Equal(t, now, outcome.LastViolationAt)
}

func TestTransitionPenaltyScaling(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	tests := []struct {
		name       string
		confidence float64
		category   enum.VerdictCategory
		docked     int
	}{
		{"scam full confidence", 1.0, enum.VerdictCategoryScam, 30},
		{"scam at threshold", 0.7, enum.VerdictCategoryScam, 21},
		{"harmful at threshold", 0.7, enum.VerdictCategoryHarmful, 21},
		{"promo never below escalation penalty", 0.7, enum.VerdictCategoryPromo, 5},
		{"link flood", 0.8, enum.VerdictCategoryLinkFlood, 8},
		{"generic", 1.0, enum.VerdictCategoryGeneric, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			before := snapshot(enum.ActorStateNormal, 100)
			outcome := engine.Transition(before, spamVerdict(tc.confidence, tc.category), testThreshold, now)
			assert.Equal(t, tc.docked, outcome.PointsDocked)
			assert.Equal(t, 100-tc.docked, outcome.Reputation)
		})
	}
}

func TestTransitionConfidenceFloor(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)

	// Below half confidence the scale factor is pinned at 0.5, so a lax
	// threshold cannot shrink the penalty arbitrarily.
	before := snapshot(enum.ActorStateNormal, 100)
	outcome := engine.Transition(before, spamVerdict(0.3, enum.VerdictCategoryScam), 0.2, time.Now())
	assert.Equal(t, 15, outcome.PointsDocked)
}

func TestTransitionScoreClamping(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t)
	now := time.Now()

	// Floor at zero
	before := snapshot(enum.ActorStateWarned, 10)
	outcome := engine.Transition(before, spamVerdict(1.0, enum.VerdictCategoryScam), testThreshold, now)
	assert.Equal(t, reputation.MinScore, outcome.Reputation)

	// Ceiling at the maximum
	before = snapshot(enum.ActorStateWarned, 95)
	before.LastViolationAt = now.Add(-10 * time.Hour)
	outcome = engine.Transition(before, reputation.CleanVerdict(0.9), testThreshold, now)
	assert.Equal(t, reputation.MaxScore, outcome.Reputation)
}

func TestVerdictActionable(t *testing.T) {
	t.Parallel()

	assert.True(t, spamVerdict(0.7, enum.VerdictCategoryPromo).Actionable(0.7))
	assert.False(t, spamVerdict(0.69, enum.VerdictCategoryPromo).Actionable(0.7))
	assert.False(t, reputation.CleanVerdict(1.0).Actionable(0.7))
	assert.False(t, reputation.UnknownVerdict("timeout").Actionable(0.0))
}
