package reconcile

import (
	"math/rand"
	"time"
)

// Backoff between in-process repair attempts of one entry.
var retryDelays = []time.Duration{
	250 * time.Millisecond,
	time.Second,
	5 * time.Second,
	15 * time.Second,
}

// JitterFactor is the ±fraction of jitter applied to each delay.
const JitterFactor = 0.2

// NextRetryDelay returns the jittered delay after the given 0-indexed
// failed attempt. Attempts past the schedule reuse its last delay.
func NextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryDelays) {
		attempt = len(retryDelays) - 1
	}
	base := float64(retryDelays[attempt])
	jitter := (rand.Float64()*2 - 1) * base * JitterFactor
	return time.Duration(base + jitter)
}
