package repository

import (
	"errors"
	"fmt"

	"datasetAnalyzer/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrMalformedJob      = errors.New("malformed job record")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrResultNotFound    = errors.New("result not found")
	ErrResultExists      = errors.New("result already exists")
)

// TransitionError reports a rejected status change together with the status
// the record actually had.
type TransitionError struct {
	JobID string
	From  models.JobStatus
	To    models.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: %s -> %s: %s", e.JobID, e.From, e.To, ErrInvalidTransition)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
