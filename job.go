package jobmanager

import "context"

// Job is a schedulable, persistable, retryable unit of work.
//
// A Job is reconstructed from its persisted form by the Factory registered
// under FactoryKey, so every field Run depends on must round-trip through
// Serialize. Collaborators (stores, network clients) are handed to the
// factory, not looked up globally.
type Job interface {
	// FactoryKey identifies the factory that rebuilds this job from a Record.
	FactoryKey() string
	// Parameters returns the scheduling parameters fixed at construction.
	Parameters() Parameters
	// Serialize encodes the job's own fields.
	Serialize() Data
	// Run performs the job's effect. A nil error is terminal success.
	Run(ctx context.Context) error
	// ShouldRetry classifies an error returned by Run as transient.
	ShouldRetry(err error) bool
	// OnFailure is called exactly once when the job fails terminally.
	OnFailure(ctx context.Context)
}

// RunFunc is the signature of a job run after middleware is applied.
type RunFunc func(ctx context.Context) error

// Middleware wraps a RunFunc to provide cross-cutting concerns.
type Middleware func(RunFunc) RunFunc

func chain(mws []Middleware, h RunFunc) RunFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
