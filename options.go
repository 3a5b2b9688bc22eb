package jobmanager

import "time"

// ManagerConfig defines the configuration for a Manager.
type ManagerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int
	// PollInterval bounds how long an idle worker waits before looking for work again.
	PollInterval time.Duration
	// SweepInterval is how often waiting jobs are checked for expiry and constraints re-evaluated.
	SweepInterval time.Duration
	// BackoffBase is the delay after the first failed attempt. It doubles on every further attempt.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration
	// Logger is the logger used for manager events.
	Logger Logger
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithConstraint makes a constraint available to jobs under its key.
func WithConstraint(c Constraint) Option {
	return func(m *Manager) {
		m.constraints[c.Key()] = c
	}
}

// WithObserver registers an observer of absorbing transitions.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// WithClock replaces time.Now for expiry and backoff computations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Observer is notified when a job reaches StateSucceeded or StateFailed.
// It is called from worker goroutines and must not block.
type Observer interface {
	JobFinished(info JobInfo, state State, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(info JobInfo, state State, err error)

func (f ObserverFunc) JobFinished(info JobInfo, state State, err error) { f(info, state, err) }
