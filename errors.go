package jobmanager

import "errors"

// ErrInvalidParameters is returned by ParametersBuilder.Build when the attempt limit or lifespan is out of range.
var ErrInvalidParameters = errors.New("jobmanager: invalid parameters")

// ErrMalformedPayload is returned when a job payload is missing a field or holds a value of the wrong type.
// A record failing with this error is dropped; it is never retried.
var ErrMalformedPayload = errors.New("jobmanager: malformed payload")

// ErrUnknownFactoryKey is returned when no factory is registered for a record's factory key.
var ErrUnknownFactoryKey = errors.New("jobmanager: unknown factory key")

// ErrUnknownConstraint is returned when a job names a constraint the manager does not know.
var ErrUnknownConstraint = errors.New("jobmanager: unknown constraint")

// ErrJobNotFound is returned when a record with the specified ID is not found in the store.
var ErrJobNotFound = errors.New("jobmanager: job not found")

// ErrDuplicateJob is returned when a record with the same ID already exists in the store.
var ErrDuplicateJob = errors.New("jobmanager: duplicate job id")

// ErrJobPanicked is passed to Job.ShouldRetry when Run panics.
var ErrJobPanicked = errors.New("jobmanager: job panicked")

// ErrManagerStopped is returned by Add after Stop.
var ErrManagerStopped = errors.New("jobmanager: manager stopped")

// ErrJobExpired is reported to observers when a job's lifespan ran out.
var ErrJobExpired = errors.New("jobmanager: job expired")

// ErrUnknownState is returned when an invalid state is used.
var ErrUnknownState = errors.New("jobmanager: unknown state")
