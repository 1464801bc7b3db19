package models

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	ArtifactImage     = "image"
	ArtifactImages    = "images"
	ArtifactAnimation = "animation"
)

// Result is written once by the worker that completed the job.
type Result struct {
	JobID     string            `json:"job_id"`
	Counts    map[string]int    `json:"counts,omitempty"`
	Message   string            `json:"message,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Image     []byte            `json:"image,omitempty"`
	Images    map[string][]byte `json:"images,omitempty"`
	Animation []byte            `json:"animation,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ArtifactKeys lists which binary artifacts were written, in a stable order.
func (r *Result) ArtifactKeys() []string {
	var keys []string
	if len(r.Image) > 0 {
		keys = append(keys, ArtifactImage)
	}
	if len(r.Images) > 0 {
		keys = append(keys, ArtifactImages)
	}
	if len(r.Animation) > 0 {
		keys = append(keys, ArtifactAnimation)
	}
	return keys
}

// ImageNames returns the per-year image names sorted ascending.
func (r *Result) ImageNames() []string {
	names := make([]string, 0, len(r.Images))
	for name := range r.Images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
