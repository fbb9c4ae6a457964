package aggregator

import (
	"math"
	"time"

	"github.com/chatwarden/warden/internal/database/types"
)

// frequencyTau controls how quickly the burst score saturates. An average
// gap equal to tau scores about 0.37; rapid-fire posting pushes toward 1.
const frequencyTau = 60 * time.Second

// FrequencyScore maps a window of events to a burst score in [0, 1) based on
// the mean gap between consecutive events. Fewer than two events score zero.
func FrequencyScore(events []*types.Event) float64 {
	if len(events) < 2 {
		return 0
	}

	var total time.Duration

	for i := 1; i < len(events); i++ {
		delta := events[i].CreatedAt.Sub(events[i-1].CreatedAt)
		if delta < 0 {
			delta = 0
		}

		total += delta
	}

	avg := total / time.Duration(len(events)-1)

	return math.Exp(-float64(avg) / float64(frequencyTau))
}
