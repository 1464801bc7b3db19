package dto

import (
	"bytes"
	"encoding/json"

	"datasetAnalyzer/models"
)

// SubmitJobRequest accepts start/end or the gene route's
// date_approved_start/date_approved_end names.
type SubmitJobRequest struct {
	Start             string     `json:"start"`
	End               string     `json:"end"`
	DateApprovedStart string     `json:"date_approved_start"`
	DateApprovedEnd   string     `json:"date_approved_end"`
	PlotType          string     `json:"plot_type"`
	Location          string     `json:"location"`
	Query1            string     `json:"query1"`
	Query2            string     `json:"query2"`
	Animate           FlexString `json:"animate"`
}

// Parameters returns the submitted values as given; only the date aliases
// are resolved.
func (r *SubmitJobRequest) Parameters() models.Parameters {
	start, end := r.Start, r.End
	if start == "" {
		start = r.DateApprovedStart
	}
	if end == "" {
		end = r.DateApprovedEnd
	}
	return models.Parameters{
		Start:    start,
		End:      end,
		PlotType: r.PlotType,
		Location: r.Location,
		Query1:   r.Query1,
		Query2:   r.Query2,
		Animate:  string(r.Animate),
	}
}

// FlexString decodes a JSON string, boolean or number into its text form.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

type JobListResponse struct {
	Jobs []string `json:"jobs"`
}

type DeletedResponse struct {
	Deleted int `json:"deleted"`
}

// ResultResponse is the view of a job's outcome. Pending is set while the
// job has not completed; Result is set once it has.
type ResultResponse struct {
	Job     *models.Job `json:"job"`
	Pending bool        `json:"pending,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  *ResultBody `json:"result,omitempty"`
}

type ResultBody struct {
	Counts    map[string]int  `json:"counts,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Artifacts []string        `json:"artifacts,omitempty"`
	Images    []string        `json:"images,omitempty"`
	Download  string          `json:"download,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
