package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorageUnavailable wraps any failure of the persistence layer.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNoMistakes is returned when a mistakes-fix quiz is requested for a session without wrong answers.
	ErrNoMistakes = errors.New("no mistakes to practice")
	// ErrInvalidTransition is returned by the session state machine.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindRecitation
	KindMissingCredentials
	KindNormalizationFailed
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRecitation:
		return "recitation"
	case KindMissingCredentials:
		return "missing_credentials"
	case KindNormalizationFailed:
		return "normalization_failed"
	default:
		return "unknown"
	}
}

// PipelineError is the typed failure produced by the normalizer and the analysis client.
type PipelineError struct {
	Kind         Kind
	Code         string
	CitationURLs []string
	NoRetry      bool
	Err          error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Code != "":
		return e.Code
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *PipelineError) Unwrap() error { return e.Err }

func Transient(err error) *PipelineError {
	return &PipelineError{Kind: KindTransient, Err: err}
}

func Recitation(urls []string) *PipelineError {
	return &PipelineError{Kind: KindRecitation, Code: "RECITATION_BLOCKED", CitationURLs: urls, NoRetry: true}
}

func MissingCredentials() *PipelineError {
	return &PipelineError{Kind: KindMissingCredentials, Code: "API_KEY_MISSING", NoRetry: true}
}

func NormalizationFailed(err error) *PipelineError {
	return &PipelineError{Kind: KindNormalizationFailed, Code: "NORMALIZATION_FAILED", NoRetry: true, Err: err}
}

// Unknown wraps err. Set noRetry to stop the dispatcher from retrying it.
func Unknown(code string, err error, noRetry bool) *PipelineError {
	return &PipelineError{Kind: KindUnknown, Code: code, NoRetry: noRetry, Err: err}
}

// KindOf returns the pipeline kind of err. Untyped errors are KindUnknown.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// CitationURLs returns the citation urls carried by a recitation error.
func CitationURLs(err error) []string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.CitationURLs
	}
	return nil
}

// NoRetry reports whether err was explicitly marked as not retriable.
func NoRetry(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.NoRetry
	}
	return false
}
