package scheduler

import "errors"

var (
	// ErrSchedulerRunning is returned when registering a job on a started scheduler
	ErrSchedulerRunning = errors.New("scheduler is running")

	// ErrDuplicateJob is returned when two jobs share a name
	ErrDuplicateJob = errors.New("duplicate job name")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrJobPanicked wraps a panic raised by a job
	ErrJobPanicked = errors.New("job panicked")
)
