package models

import (
	"strings"
	"time"
)

type JobStatus string

const (
	StatusSubmitted  JobStatus = "submitted"
	StatusInProgress JobStatus = "in_progress"
	StatusComplete   JobStatus = "complete"
	StatusError      JobStatus = "error"
)

var statusRank = map[JobStatus]int{
	StatusSubmitted:  0,
	StatusInProgress: 1,
	StatusComplete:   2,
	StatusError:      2,
}

func (s JobStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// CanTransition reports whether a job in status s may move to next.
// Re-setting the current status is allowed so a redelivered job can be resumed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

const (
	PlotLine    = "line"
	PlotBar     = "bar"
	PlotScatter = "scatter"

	DefaultLocation = "World"
	DefaultQuery1   = "TPopulation1July"
	DefaultQuery2   = "LEx"
)

// Parameters are the recognized submission fields. Absent fields stay empty
// and are omitted from the stored record.
type Parameters struct {
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	PlotType string `json:"plot_type,omitempty"`
	Location string `json:"location,omitempty"`
	Query1   string `json:"query1,omitempty"`
	Query2   string `json:"query2,omitempty"`
	Animate  string `json:"animate,omitempty"`
}

// IsPlot reports whether the job renders population plots rather than
// counting genes.
func (p Parameters) IsPlot() bool {
	return p.PlotType != ""
}

func (p Parameters) LocationOrDefault() string {
	if p.Location == "" {
		return DefaultLocation
	}
	return p.Location
}

func (p Parameters) Query1OrDefault() string {
	if p.Query1 == "" {
		return DefaultQuery1
	}
	return p.Query1
}

func (p Parameters) Query2OrDefault() string {
	if p.Query2 == "" {
		return DefaultQuery2
	}
	return p.Query2
}

// Normalized returns the form validation and analysis work on: fields
// trimmed and plot_type lowercased. The stored record keeps the submitted
// values.
func (p Parameters) Normalized() Parameters {
	return Parameters{
		Start:    strings.TrimSpace(p.Start),
		End:      strings.TrimSpace(p.End),
		PlotType: strings.ToLower(strings.TrimSpace(p.PlotType)),
		Location: strings.TrimSpace(p.Location),
		Query1:   strings.TrimSpace(p.Query1),
		Query2:   strings.TrimSpace(p.Query2),
		Animate:  strings.TrimSpace(p.Animate),
	}
}

// Animated is true only for a case-insensitive "true".
func (p Parameters) Animated() bool {
	return strings.EqualFold(strings.TrimSpace(p.Animate), "true")
}

type Job struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Parameters
	ErrorMessage string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
