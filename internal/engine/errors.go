package engine

import (
	"errors"
	"fmt"

	"segmentline/internal/collector"
	"segmentline/internal/selection"
)

const (
	ReasonMissingName   = "missing segment name"
	ReasonMissingSchema = "missing schema"
)

var (
	// ErrBusy is returned by Submit while another submission is in flight.
	ErrBusy = errors.New("submission already in progress")
	// ErrClosed is returned for intents on a session that is not open.
	ErrClosed = errors.New("compose session is not open")
)

// IndexError is the out-of-range slot error raised by the selection list.
type IndexError = selection.IndexError

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// UserMessage is the text shown to the user for this error.
func (e ValidationError) UserMessage() string {
	switch e.Reason {
	case ReasonMissingName:
		return "please enter a segment name"
	case ReasonMissingSchema:
		return "please add at least one schema"
	default:
		return e.Reason
	}
}

// SubmissionError reports a failed delivery to the collector.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func newSubmissionError(err error) *SubmissionError {
	se := &SubmissionError{Err: err}
	var status *collector.StatusError
	if errors.As(err, &status) {
		se.StatusCode = status.StatusCode
		se.Body = status.Body
	}
	return se
}

// Detail is the best-effort description of what the collector returned.
func (e *SubmissionError) Detail() string {
	if e.StatusCode != 0 {
		if e.Body == "" {
			return fmt.Sprintf("server responded %d", e.StatusCode)
		}
		return fmt.Sprintf("server responded %d %s", e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *SubmissionError) Error() string {
	return "submission failed: " + e.Detail()
}

func (e *SubmissionError) Unwrap() error { return e.Err }
