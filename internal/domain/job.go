package domain

import (
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// Job tracks one text-to-image generation attempt from submission to a
// terminal outcome. The ID is assigned by the backend gateway at submission
// time and is never reassigned.
type Job struct {
	ID          string
	Prompt      string
	Status      JobStatus
	ResultURL   string
	ErrorDetail string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Terminal reports whether the job has reached complete or error.
func (j *Job) Terminal() bool {
	return j.Status.Terminal()
}

// ValidJobID reports whether id is usable as a polling key. Empty strings and
// serialized null sentinels guard against a corrupted submission response
// leaking into the polling working set.
func ValidJobID(id string) bool {
	switch strings.TrimSpace(id) {
	case "", "null", "undefined":
		return false
	}
	return true
}
