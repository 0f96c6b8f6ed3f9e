package dispatch

import (
	"errors"
	"fmt"
)

// ErrNoModelAvailable is returned when every candidate was unavailable.
var ErrNoModelAvailable = errors.New("no model available")

// Class separates failures the dispatcher recovers from locally from those
// it surfaces immediately.
type Class int

const (
	// ClassFatal stops the fallback chain.
	ClassFatal Class = iota
	// ClassUnavailable moves on to the next candidate.
	ClassUnavailable
)

func (c Class) String() string {
	if c == ClassUnavailable {
		return "unavailable"
	}
	return "fatal"
}

// UpstreamError is a classified failure from an Upstream.
type UpstreamError struct {
	Class      Class
	Model      string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s (%s, status %d): %v", e.Model, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s (%s): %v", e.Model, e.Class, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a "model not found / unavailable" failure.
func Unavailable(model string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Class: ClassUnavailable, Model: model, StatusCode: statusCode, Err: err}
}

// Fatal wraps err as a failure that must not be retried on other candidates.
func Fatal(model string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Class: ClassFatal, Model: model, StatusCode: statusCode, Err: err}
}

// IsUnavailable reports whether err is classified as unavailable.
func IsUnavailable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Class == ClassUnavailable
}
