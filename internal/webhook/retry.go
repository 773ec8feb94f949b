package webhook

import (
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts is the number of delivery attempts per callback,
// including the first one.
const DefaultMaxAttempts = 4

// Backoff spaces out callback retries exponentially with random jitter.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	// Jitter is the fraction of the delay randomly added or removed.
	Jitter float64
}

// DefaultBackoff waits about 5s, 30s and 2m between the four attempts.
var DefaultBackoff = Backoff{
	Initial:    5 * time.Second,
	Multiplier: 6,
	Max:        2 * time.Minute,
	Jitter:     0.2,
}

// Delay returns the wait before retry number n, counted from 0 for the
// wait after the first failed attempt.
func (b Backoff) Delay(n int) time.Duration {
	base := b.base(n)
	if b.Jitter <= 0 {
		return base
	}
	spread := float64(base) * b.Jitter
	return time.Duration(float64(base) + (rand.Float64()*2-1)*spread)
}

func (b Backoff) base(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(b.Initial)
	for i := 0; i < n; i++ {
		d *= b.Multiplier
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
