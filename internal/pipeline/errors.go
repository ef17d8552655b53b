package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a failed sheet, record or metadata fetch. Not retried.
	ErrFetch = errors.New("fetch failed")
	// ErrSubmissionRejected means the endpoint answered without accepting the payload.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrSubmissionTransport means the outbound call itself failed.
	ErrSubmissionTransport = errors.New("submission transport error")
	// ErrJobRequired is returned when a submission is attempted without a job.
	ErrJobRequired = errors.New("job id is required")
	// ErrJobCompleted is returned when retrying a job that already completed.
	ErrJobCompleted = errors.New("job already completed")
	// ErrSubmissionInFlight is set on a duplicate outcome.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrCompletionNotRecorded means the endpoint took the payload but the
	// job could not be completed. Retrying would deliver the data again.
	ErrCompletionNotRecorded = errors.New("delivered but completion not recorded")
)

// FetchError wraps a collaborator failure with the operation and resource it hit.
type FetchError struct {
	Op  string
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}

func fetchError(op, id string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Op: op, ID: id, Err: err}
}

// RejectedError describes a reachable endpoint that did not accept the payload.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submission rejected (status %d): %s", e.StatusCode, e.Message)
	}
	return "submission rejected: " + e.Message
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrSubmissionRejected
}

func transportError(err error) error {
	if errors.Is(err, ErrSubmissionTransport) || errors.Is(err, ErrSubmissionRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSubmissionTransport, err)
}

func isFetch(err error) bool     { return errors.Is(err, ErrFetch) }
func isRejected(err error) bool  { return errors.Is(err, ErrSubmissionRejected) }
func isTransport(err error) bool { return errors.Is(err, ErrSubmissionTransport) }
