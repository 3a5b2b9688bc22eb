package jobmanager

import (
	"slices"
	"time"
)

// Record is the persisted form of a job. It is created when a job is added,
// updated on every attempt and deleted when the job succeeds or fails terminally.
type Record struct {
	// ID is the unique identifier for the record.
	ID string `json:"id"`
	// FactoryKey selects the Factory that rebuilds the job.
	FactoryKey string `json:"factory_key"`
	// Queue is the serialization queue key, empty for none.
	Queue string `json:"queue,omitempty"`
	// Constraints lists the constraint keys required before each attempt.
	Constraints []string `json:"constraints,omitempty"`
	// LifespanMs is the lifespan in milliseconds, or -1 for immortal jobs.
	LifespanMs int64 `json:"lifespan_ms"`
	// MaxAttempts is the attempt limit, or -1 for unlimited.
	MaxAttempts int `json:"max_attempts"`
	// Data is the job payload.
	Data Data `json:"data"`
	// Attempt is the number of attempts started so far.
	Attempt int `json:"attempt"`
	// CreatedAt is the timestamp (ms) when the job was added.
	CreatedAt int64 `json:"created_at"`
	// NextRunAt is the timestamp (ms) before which the job must not start.
	NextRunAt int64 `json:"next_run_at,omitempty"`
	// Seq is the submission sequence assigned by the store. It orders jobs within a queue.
	Seq int64 `json:"seq"`
	// LastError is the error message from the last failed attempt.
	LastError string `json:"last_error,omitempty"`
}

func newRecord(id string, job Job, now time.Time) *Record {
	p := job.Parameters()
	lifespan := int64(-1)
	if !p.IsImmortal() {
		lifespan = p.Lifespan().Milliseconds()
	}
	return &Record{
		ID:          id,
		FactoryKey:  job.FactoryKey(),
		Queue:       p.Queue(),
		Constraints: p.Constraints(),
		LifespanMs:  lifespan,
		MaxAttempts: p.MaxAttempts(),
		Data:        job.Serialize(),
		CreatedAt:   now.UnixMilli(),
	}
}

// Parameters rebuilds the job parameters stored on the record.
func (r *Record) Parameters() (Parameters, error) {
	b := NewParametersBuilder().
		SetQueue(r.Queue).
		SetMaxAttempts(r.MaxAttempts)
	if r.LifespanMs < 0 {
		b.SetLifespan(Immortal)
	} else {
		b.SetLifespan(time.Duration(r.LifespanMs) * time.Millisecond)
	}
	for _, c := range r.Constraints {
		b.AddConstraint(c)
	}
	return b.Build()
}

// Expired reports whether the record's lifespan has run out at now.
func (r *Record) Expired(now time.Time) bool {
	if r.LifespanMs < 0 {
		return false
	}
	return now.UnixMilli()-r.CreatedAt > r.LifespanMs
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Constraints = slices.Clone(r.Constraints)
	c.Data = NewDataBuilderFrom(r.Data).Build()
	return &c
}
