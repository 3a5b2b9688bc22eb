package jobmanager

import (
	"fmt"
	"slices"
	"time"
)

const (
	// Unlimited disables the attempt limit.
	Unlimited = -1
	// Immortal disables lifespan expiry.
	Immortal time.Duration = -1
)

// Parameters describe how the manager schedules a job: the constraints that
// must hold before an attempt starts, the lifespan measured from creation,
// the attempt limit and the serialization queue. Parameters are immutable;
// attempt counters live on the persisted Record.
type Parameters struct {
	constraints []string
	lifespan    time.Duration
	maxAttempts int
	queue       string
}

// Constraints returns the keys of the constraints required before each attempt.
func (p Parameters) Constraints() []string { return slices.Clone(p.constraints) }

// Lifespan returns the lifespan relative to creation time, or Immortal.
func (p Parameters) Lifespan() time.Duration { return p.lifespan }

// MaxAttempts returns the attempt limit, or Unlimited.
func (p Parameters) MaxAttempts() int { return p.maxAttempts }

// Queue returns the serialization queue key. Empty means no ordering constraint.
func (p Parameters) Queue() string { return p.queue }

// IsImmortal reports whether the job never expires.
func (p Parameters) IsImmortal() bool { return p.lifespan == Immortal }

// IsUnlimited reports whether the job may be attempted indefinitely.
func (p Parameters) IsUnlimited() bool { return p.maxAttempts == Unlimited }

// ParametersBuilder assembles Parameters. The zero value is not usable; call NewParametersBuilder.
type ParametersBuilder struct {
	p Parameters
}

// NewParametersBuilder returns a builder with no constraints, an Immortal
// lifespan, a single attempt and no queue.
func NewParametersBuilder() *ParametersBuilder {
	return &ParametersBuilder{p: Parameters{lifespan: Immortal, maxAttempts: 1}}
}

// AddConstraint requires the named constraint before every attempt. Duplicates are ignored.
func (b *ParametersBuilder) AddConstraint(key string) *ParametersBuilder {
	if !slices.Contains(b.p.constraints, key) {
		b.p.constraints = append(b.p.constraints, key)
	}
	return b
}

// SetLifespan sets the lifespan relative to creation time. Use Immortal to disable expiry.
func (b *ParametersBuilder) SetLifespan(d time.Duration) *ParametersBuilder {
	b.p.lifespan = d
	return b
}

// SetMaxAttempts sets the attempt limit. Use Unlimited to retry until the lifespan runs out.
func (b *ParametersBuilder) SetMaxAttempts(n int) *ParametersBuilder {
	b.p.maxAttempts = n
	return b
}

// SetQueue sets the serialization queue key.
func (b *ParametersBuilder) SetQueue(queue string) *ParametersBuilder {
	b.p.queue = queue
	return b
}

// Build validates and returns the Parameters.
func (b *ParametersBuilder) Build() (Parameters, error) {
	p := b.p
	if p.maxAttempts <= 0 && p.maxAttempts != Unlimited {
		return Parameters{}, fmt.Errorf("%w: max attempts %d", ErrInvalidParameters, p.maxAttempts)
	}
	if p.lifespan < 0 && p.lifespan != Immortal {
		return Parameters{}, fmt.Errorf("%w: lifespan %s", ErrInvalidParameters, p.lifespan)
	}
	p.constraints = slices.Clone(p.constraints)
	return p, nil
}

// MustBuild is like Build but panics on invalid input. It is meant for
// parameters fixed at compile time by a job variant.
func (b *ParametersBuilder) MustBuild() Parameters {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
