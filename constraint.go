package jobmanager

import "sync"

// Constraint is a named precondition that must hold before a job attempt starts.
// An unsatisfied constraint keeps the job pending without consuming an attempt.
type Constraint interface {
	Key() string
	IsSatisfied() bool
}

// Observable is implemented by constraints that can signal when their
// satisfaction may have changed, so waiting jobs are re-evaluated right away
// instead of on the next maintenance tick.
type Observable interface {
	Observe(fn func())
}

// Reachability reports whether the network is currently usable.
type Reachability interface {
	IsNetworkAvailable() bool
}

// NetworkConstraintKey is the key of NetworkConstraint.
const NetworkConstraintKey = "NetworkConstraint"

// NetworkConstraint holds while the wrapped Reachability reports the network as available.
type NetworkConstraint struct {
	r Reachability
}

// NewNetworkConstraint wraps r.
func NewNetworkConstraint(r Reachability) *NetworkConstraint {
	return &NetworkConstraint{r: r}
}

func (c *NetworkConstraint) Key() string { return NetworkConstraintKey }

func (c *NetworkConstraint) IsSatisfied() bool { return c.r.IsNetworkAvailable() }

// Observe forwards to the Reachability when it is itself Observable.
func (c *NetworkConstraint) Observe(fn func()) {
	if o, ok := c.r.(Observable); ok {
		o.Observe(fn)
	}
}

// ReachabilityFlag is a settable Reachability. Observers run on every transition.
type ReachabilityFlag struct {
	mu        sync.Mutex
	available bool
	observers []func()
}

// NewReachabilityFlag returns a flag with the given initial state.
func NewReachabilityFlag(available bool) *ReachabilityFlag {
	return &ReachabilityFlag{available: available}
}

func (f *ReachabilityFlag) IsNetworkAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

// Set updates the flag and notifies observers if the value changed.
func (f *ReachabilityFlag) Set(available bool) {
	f.mu.Lock()
	changed := f.available != available
	f.available = available
	obs := append([]func(){}, f.observers...)
	f.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range obs {
		fn()
	}
}

func (f *ReachabilityFlag) Observe(fn func()) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}
