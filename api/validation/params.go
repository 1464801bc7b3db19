package validation

import (
	"fmt"
	"strings"
	"time"

	"datasetAnalyzer/models"
)

const yearLayout = "2006"

// Parameters checks a submission before any record is created. Gene count
// jobs need full YYYY-MM-DD dates; plot jobs also accept a bare YYYY.
func Parameters(p models.Parameters) error {
	p = p.Normalized()
	if p.Start == "" {
		return &Error{Field: "start", Err: ErrMissingDate}
	}
	if p.End == "" {
		return &Error{Field: "end", Err: ErrMissingDate}
	}

	plot := p.IsPlot()
	start, startYearOnly, err := parseDate(p.Start, plot)
	if err != nil {
		return &Error{Field: "start", Err: err}
	}
	end, endYearOnly, err := parseDate(p.End, plot)
	if err != nil {
		return &Error{Field: "end", Err: err}
	}

	// A bare year covers the whole year, so mixed forms compare by year.
	if startYearOnly || endYearOnly {
		if end.Year() < start.Year() {
			return &Error{Field: "end", Err: ErrEndBeforeStart}
		}
	} else if end.Before(start) {
		return &Error{Field: "end", Err: ErrEndBeforeStart}
	}

	if plot {
		switch p.PlotType {
		case models.PlotLine, models.PlotBar, models.PlotScatter:
		default:
			return &Error{Field: "plot_type", Err: ErrInvalidPlotType}
		}
	}

	if p.Animate != "" {
		switch strings.ToLower(p.Animate) {
		case "true", "false":
		default:
			return &Error{Field: "animate", Err: ErrInvalidAnimate}
		}
	}
	return nil
}

// parseDate reports whether s was a bare year.
func parseDate(s string, allowYear bool) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, false, nil
	}
	if !allowYear {
		return time.Time{}, false, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
	}
	if len(s) == len(yearLayout) {
		if t, err := time.Parse(yearLayout, s); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: %q is not YYYY or YYYY-MM-DD", ErrInvalidDate, s)
}
