package aggregator_test

import (
	"testing"
	"time"

	"github.com/chatwarden/warden/internal/aggregator"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/stretchr/testify/assert"
)

func eventsWithGaps(start time.Time, gaps ...time.Duration) []*types.Event {
	events := []*types.Event{{ID: "0", CreatedAt: start}}
	at := start

	for i, gap := range gaps {
		at = at.Add(gap)
		events = append(events, &types.Event{ID: string(rune('1' + i)), CreatedAt: at})
	}

	return events
}

func TestFrequencyScoreEmptyAndSingle(t *testing.T) {
	t.Parallel()

	assert.Zero(t, aggregator.FrequencyScore(nil))
	assert.Zero(t, aggregator.FrequencyScore([]*types.Event{{ID: "1", CreatedAt: time.Now()}}))
}

func TestFrequencyScoreBurstVersusIdle(t *testing.T) {
	t.Parallel()

	now := time.Now()

	burst := aggregator.FrequencyScore(eventsWithGaps(now, time.Second, time.Second, time.Second))
	idle := aggregator.FrequencyScore(eventsWithGaps(now, 10*time.Minute, 10*time.Minute))

	assert.Greater(t, burst, 0.9)
	assert.Less(t, idle, 0.01)
	assert.Greater(t, burst, idle)
}

func TestFrequencyScoreMonotonicInRate(t *testing.T) {
	t.Parallel()

	now := time.Now()

	fast := aggregator.FrequencyScore(eventsWithGaps(now, 5*time.Second, 5*time.Second))
	slow := aggregator.FrequencyScore(eventsWithGaps(now, 2*time.Minute, 2*time.Minute))

	assert.Greater(t, fast, slow)
}

func TestFrequencyScoreIgnoresClockSkew(t *testing.T) {
	t.Parallel()

	now := time.Now()
	events := []*types.Event{
		{ID: "1", CreatedAt: now},
		{ID: "2", CreatedAt: now.Add(-time.Second)},
		{ID: "3", CreatedAt: now.Add(time.Second)},
	}

	score := aggregator.FrequencyScore(events)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.Less(t, score, 1.0)
}
