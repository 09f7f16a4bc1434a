package common

import (
	"errors"
	"fmt"
)

// Kind classifies a job execution failure so the worker knows how to react.
type Kind int

const (
	// KindValidation marks a malformed input item: skip it, log it, keep going.
	KindValidation Kind = iota
	// KindRateLimit marks a quota denial: back off and re-enqueue, never counts as a failure.
	KindRateLimit
	// KindTransient marks a recoverable hiccup (network, auth refresh): retry up to max_retries.
	KindTransient
	// KindFatal marks an unrecoverable failure: the job goes terminal immediately.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// JobError carries a failure kind alongside the underlying error.
type JobError struct {
	Kind Kind
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *JobError) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &JobError{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func RateLimitf(format string, args ...any) error {
	return &JobError{Kind: KindRateLimit, Err: fmt.Errorf(format, args...)}
}

func Transientf(format string, args ...any) error {
	return &JobError{Kind: KindTransient, Err: fmt.Errorf(format, args...)}
}

func Fatalf(format string, args ...any) error {
	return &JobError{Kind: KindFatal, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the failure kind for err. Errors that were never classified
// are treated as transient so they stay retryable.
func KindOf(err error) Kind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return KindTransient
}
