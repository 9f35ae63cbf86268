package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job. Transitions are forward-only;
// see CanTransition.
type JobStatus string

const (
	JobPending            JobStatus = "pending"
	JobProcessing         JobStatus = "processing"
	JobFinishedProcessing JobStatus = "finished-processing"
	JobErrorProcessing    JobStatus = "error-processing"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing},
	JobProcessing: {JobFinishedProcessing, JobErrorProcessing},
}

// CanTransition reports whether a job may move from its current status to
// the given one. Writing the same status again is allowed so that a
// redelivered message can repeat an update it already made.
func (s JobStatus) CanTransition(to JobStatus) bool {
	if s == to {
		return true
	}
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobFinishedProcessing || s == JobErrorProcessing
}

// Job represents one source video to be resolved into downloadable formats.
// A job is created pending by the enqueue producer; the discovery worker
// holding its queue message is the only writer until it reaches a terminal
// status.
type Job struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	URL       string    `db:"url"        json:"url"`
	Title     *string   `db:"title"      json:"title,omitempty"`
	Thumbnail *string   `db:"thumbnail"  json:"thumbnail,omitempty"`
	Status    JobStatus `db:"status"     json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
