package model

import (
	"errors"
	"fmt"
	"time"
)

// JobState is the lifecycle state of a submission job
type JobState string

const (
	JobCreated      JobState = "created"
	JobAcknowledged JobState = "acknowledged"
	JobCompleted    JobState = "completed"
	JobFailed       JobState = "failed"
)

// Job operations raised by the import workflow
const (
	OperationSubmit     = "workbook:submitAction"
	OperationAutoSubmit = "workbook:autoSubmit"
)

// ErrInvalidTransition is returned when a job is moved along an edge the
// state machine does not have.
var ErrInvalidTransition = errors.New("invalid job transition")

// Job is a unit-of-work token for one submission attempt
type Job struct {
	ID         string    `json:"id"`
	WorkbookID string    `json:"workbookId"`
	SpaceID    string    `json:"spaceId"`
	Operation  string    `json:"operation"`
	State      JobState  `json:"state"`
	Info       string    `json:"info,omitempty"`
	Progress   int       `json:"progress"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether from -> to is an edge of
// created -> acknowledged -> {completed | failed}. A job may also fail
// straight from created when the failure happens before acknowledgement.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobCreated:
		return to == JobAcknowledged || to == JobFailed
	case JobAcknowledged:
		return to == JobCompleted || to == JobFailed
	default:
		return false
	}
}

// Transition moves the job to the given state.
func (j *Job) Transition(to JobState) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, j.State, to, j.ID)
	}
	j.State = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}
