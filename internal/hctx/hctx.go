package hctx

import "context"

// State holds per-attempt metadata the manager hands to a running job.
type State struct {
	JobID      string
	FactoryKey string
	Attempt    int
}

// New creates a state container for one attempt.
func New(jobID, factoryKey string, attempt int) *State {
	return &State{JobID: jobID, FactoryKey: factoryKey, Attempt: attempt}
}

type ctxKey struct{}

// WithState returns a child context carrying the given attempt state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the attempt state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}
