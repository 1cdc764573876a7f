package gateway

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	initialBackoff       = time.Second
	maxBackoff           = 2 * time.Minute
	backoffMultiplier    = 2.0
	backoffRandomization = 0.2
)

// newReconnectBackoff builds the reconnect schedule: exponential with
// jitter, capped ceiling, and no elapsed-time limit. A bot that is not in
// the room is fully non-functional, so the schedule never gives up.
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.MaxInterval = maxBackoff
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = backoffRandomization
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
