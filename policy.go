package jobmanager

import "time"

// verdict is the engine's decision after a failed attempt.
type verdict int

const (
	verdictRetry verdict = iota
	verdictExpired
	verdictExhausted
	verdictNotRetryable
)

func (v verdict) String() string {
	switch v {
	case verdictRetry:
		return "retry"
	case verdictExpired:
		return "expired"
	case verdictExhausted:
		return "attempts exhausted"
	default:
		return "not retryable"
	}
}

// decide applies the failure rules in order: lifespan, attempt limit, then
// the job's own classification. rec.Attempt counts the attempt that just failed.
func decide(rec *Record, job Job, err error, now time.Time) verdict {
	if rec.Expired(now) {
		return verdictExpired
	}
	if rec.MaxAttempts != Unlimited && rec.Attempt >= rec.MaxAttempts {
		return verdictExhausted
	}
	if !job.ShouldRetry(err) {
		return verdictNotRetryable
	}
	return verdictRetry
}
