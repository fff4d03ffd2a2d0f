package suno

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrSubmissionFailed = errors.New("suno: submission failed")
	ErrPollFailed       = errors.New("suno: poll failed")
	ErrJobFailed        = errors.New("suno: generation failed")
	ErrTimeout          = errors.New("suno: timeout")

	// ErrEmptyResult marks a task that succeeded without songs. It is never
	// returned by Generate; see Result.Err.
	ErrEmptyResult = errors.New("suno: no songs were generated")

	ErrMissingAPIKey = errors.New("suno: api key is required")
)

// Kind classifies a terminal failure.
type Kind int

const (
	KindSubmission Kind = iota + 1
	KindPoll
	KindJob
	KindTimeout
)

func (k Kind) sentinel() error {
	switch k {
	case KindSubmission:
		return ErrSubmissionFailed
	case KindPoll:
		return ErrPollFailed
	case KindJob:
		return ErrJobFailed
	case KindTimeout:
		return ErrTimeout
	}
	return nil
}

func (k Kind) String() string {
	switch k {
	case KindSubmission:
		return "submission failed"
	case KindPoll:
		return "poll failed"
	case KindJob:
		return "generation failed"
	case KindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a terminal, non-retryable failure of one generation call.
type Error struct {
	Kind   Kind
	TaskID string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return "suno: " + e.Kind.String()
	}
	return fmt.Sprintf("suno: %s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// transportError is a network, HTTP status or decoding failure. During
// polling it causes a retry instead of aborting.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string { return fmt.Sprintf("suno: %s: %v", e.op, e.err) }

func (e *transportError) Unwrap() error { return e.err }
