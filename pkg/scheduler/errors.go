package scheduler

import "errors"

var (
	// ErrNilTickFunc is returned when a nil tick function is registered.
	ErrNilTickFunc = errors.New("tick function cannot be nil")

	// ErrInvalidInterval is returned for non-positive intervals.
	ErrInvalidInterval = errors.New("interval must be positive")

	// ErrJobAlreadyRegistered is returned when a job name is reused.
	ErrJobAlreadyRegistered = errors.New("job with this name already registered")

	// ErrNoJobsRegistered is returned when Start is called on an empty scheduler.
	ErrNoJobsRegistered = errors.New("no jobs registered")
)
