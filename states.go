package jobmanager

// State represents the lifecycle state of a job.
// Use the exported constants (StatePending, StateRunning, etc.) instead of
// raw strings to avoid typos.
type State string

const (
	// StatePending jobs wait for their lane, their constraints or their backoff delay.
	StatePending State = "pending"
	// StateRunning jobs have an attempt in flight.
	StateRunning State = "running"
	// StateSucceeded is absorbing; the record has been deleted.
	StateSucceeded State = "succeeded"
	// StateFailed is absorbing; OnFailure has run and the record has been deleted.
	StateFailed State = "failed"
)

// AllStates lists every valid job state in a stable order.
var AllStates = []State{StatePending, StateRunning, StateSucceeded, StateFailed}

// String returns the raw string value of the state.
func (s State) String() string { return string(s) }

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// ParseState converts a string into a State, returning an error for unknown values.
func ParseState(s string) (State, error) {
	switch s {
	case string(StatePending):
		return StatePending, nil
	case string(StateRunning):
		return StateRunning, nil
	case string(StateSucceeded):
		return StateSucceeded, nil
	case string(StateFailed):
		return StateFailed, nil
	default:
		return "", ErrUnknownState
	}
}
