package validation

import "errors"

var (
	ErrMissingDate     = errors.New("start and end are required")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEndBeforeStart  = errors.New("end is before start")
	ErrInvalidPlotType = errors.New("plot_type must be line, bar or scatter")
	ErrInvalidAnimate  = errors.New("animate must be true or false")
)

// Error names the offending field. It unwraps to one of the sentinels above.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
