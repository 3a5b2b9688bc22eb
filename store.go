package jobmanager

import "context"

// Store persists job records. Implementations must be safe for concurrent use
// and every method must be atomic with respect to the record it touches, so a
// process restarting mid-attempt always reads a consistent record.
type Store interface {
	// Put persists a new record and assigns its Seq. It returns ErrDuplicateJob if the ID exists.
	Put(ctx context.Context, r *Record) error
	// Get returns the record with the given ID, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// Delete removes the record, or returns ErrJobNotFound.
	Delete(ctx context.Context, id string) error
	// IncrementAttempt atomically increments the attempt counter and returns the new value.
	IncrementAttempt(ctx context.Context, id string) (int, error)
	// Reschedule records the next eligible start time (ms) and the last error.
	Reschedule(ctx context.Context, id string, nextRunAt int64, lastErr string) error
	// IDs returns the IDs of all persisted records in submission order.
	IDs(ctx context.Context) ([]string, error)
}
