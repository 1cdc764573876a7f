package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectBackoff_GrowsAndCaps(t *testing.T) {
	bo := newReconnectBackoff()

	prevMax := time.Duration(0)
	for i := 0; i < 20; i++ {
		d := bo.NextBackOff()
		// With randomization 0.2 each delay stays within ±20% of the
		// deterministic schedule, and the schedule never exceeds the cap.
		assert.LessOrEqual(t, d, time.Duration(float64(maxBackoff)*(1+backoffRandomization)))
		assert.Greater(t, d, time.Duration(0))
		if d > prevMax {
			prevMax = d
		}
	}
	// After 20 attempts the schedule must have reached the ceiling region.
	assert.GreaterOrEqual(t, prevMax, time.Duration(float64(maxBackoff)*(1-backoffRandomization)))
}

func TestReconnectBackoff_NeverGivesUp(t *testing.T) {
	bo := newReconnectBackoff()
	for i := 0; i < 100; i++ {
		assert.NotEqual(t, bo.NextBackOff(), time.Duration(-1), "backoff must never stop")
	}
}

func TestReconnectBackoff_ResetRestartsSchedule(t *testing.T) {
	bo := newReconnectBackoff()
	for i := 0; i < 10; i++ {
		bo.NextBackOff()
	}
	bo.Reset()
	d := bo.NextBackOff()
	assert.LessOrEqual(t, d, time.Duration(float64(initialBackoff)*(1+backoffRandomization)))
}
