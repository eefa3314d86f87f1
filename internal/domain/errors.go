package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the per-sample failure modes. They are wrapped with
// context as they propagate and checked with errors.Is at the orchestrator
// boundary, where they are downgraded to recorded outcomes.
var (
	// ErrMalformedContent means the scraped blob has no recognizable
	// section structure at all.
	ErrMalformedContent = errors.New("malformed content: no recognizable section structure")

	// ErrLayoutOverflow means a bucket received more drugs than its
	// workbook column has reserved rows for.
	ErrLayoutOverflow = errors.New("layout overflow: bucket exceeds column capacity")

	// ErrDuplicateSample means the aggregate matrix already holds a
	// column for the sample id.
	ErrDuplicateSample = errors.New("duplicate sample: aggregate column already exists")

	// ErrIncompleteInput means a required per-sample artifact (workbook
	// or scraped blob) is missing; the sample is skipped, never attempted.
	ErrIncompleteInput = errors.New("incomplete input: required artifact missing")

	// ErrWriteFailure means persisting a mutated document failed.
	ErrWriteFailure = errors.New("write failure: document could not be persisted")

	// ErrAggregateHalted means an earlier aggregate write failure halted
	// all further aggregate updates for this run.
	ErrAggregateHalted = errors.New("aggregate halted: earlier write failure poisoned aggregate state")
)

// ErrorKind is the report-facing classification of a sample failure.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindMalformedContent ErrorKind = "MALFORMED_CONTENT"
	KindLayoutOverflow   ErrorKind = "LAYOUT_OVERFLOW"
	KindDuplicateSample  ErrorKind = "DUPLICATE_SAMPLE"
	KindIncompleteInput  ErrorKind = "SKIPPED_INCOMPLETE_INPUT"
	KindWriteFailure     ErrorKind = "WRITE_FAILURE"
	KindAggregateHalted  ErrorKind = "AGGREGATE_HALTED"
	KindInternal         ErrorKind = "INTERNAL"
)

// KindOf maps an error chain to its report-facing kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedContent):
		return KindMalformedContent
	case errors.Is(err, ErrLayoutOverflow):
		return KindLayoutOverflow
	case errors.Is(err, ErrDuplicateSample):
		return KindDuplicateSample
	case errors.Is(err, ErrIncompleteInput):
		return KindIncompleteInput
	case errors.Is(err, ErrAggregateHalted):
		return KindAggregateHalted
	case errors.Is(err, ErrWriteFailure):
		return KindWriteFailure
	default:
		return KindInternal
	}
}

// SampleError attaches a sample id to an underlying failure so the batch
// report can name which sample failed and why.
type SampleError struct {
	SampleID SampleID
	Err      error
}

// Error implements the error interface.
func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %s: %v", e.SampleID, e.Err)
}

// Unwrap exposes the underlying failure for errors.Is checks.
func (e *SampleError) Unwrap() error {
	return e.Err
}

// NewSampleError wraps err with the owning sample id.
func NewSampleError(id SampleID, err error) *SampleError {
	return &SampleError{SampleID: id, Err: err}
}
