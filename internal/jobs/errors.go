package jobs

import "errors"

var (
	// ErrInvalidTransition is returned when a stage change would move a job
	// backward or out of a terminal stage.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrDuplicateOpenJob is returned when the owner already has an
	// unfinished job for the same title key.
	ErrDuplicateOpenJob = errors.New("unfinished job already exists for title")
	// ErrUnitsExist is returned when units are inserted for a job that already has them.
	ErrUnitsExist = errors.New("units already exist for job")
	// ErrJobNotFound is returned by mutations addressed to a missing job.
	ErrJobNotFound = errors.New("job not found")
)
