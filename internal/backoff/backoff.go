// Package backoff computes retry delays. Delays never decrease as the
// attempt number grows, so a job's retry cadence only slows down.
package backoff

import (
	"math"
	"time"
)

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^(attempt-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// Default is the curve used when the manager is not configured otherwise.
var Default = Exponential{Base: time.Second, Max: time.Hour}

// Delay returns the wait before the retry that follows attempt n (1-indexed).
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if e.Base <= 0 {
		return 0
	}
	d := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
