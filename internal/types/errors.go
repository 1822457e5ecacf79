package types

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedAnnotation: rows that cannot form a timeline. Fatal for the case.
	ErrMalformedAnnotation = errors.New("malformed annotation")
	// ErrEmptyLabelStream: a frame-stream annotation without frames. Fatal for the case.
	ErrEmptyLabelStream = errors.New("empty label stream")
	// ErrDecodeFailure: a single frame could not be decoded. Recoverable.
	ErrDecodeFailure = errors.New("frame decode failure")
	// ErrSinkOpenFailure: an output could not be created. Fatal for the segment.
	ErrSinkOpenFailure = errors.New("sink open failure")
	// ErrPathCollision: two segments resolved to one destination. Fatal for the run.
	ErrPathCollision = errors.New("output path collision")
	// ErrCaseIDUnparseable: no case number in a file name. Fatal for that file.
	ErrCaseIDUnparseable = errors.New("case id not found in file name")
	// ErrMissingPair: a video without annotation or the reverse. The case is skipped.
	ErrMissingPair = errors.New("missing video/annotation pair")
)

// RunError reports case-level failures of a dataset run.
type RunError struct {
	Failed int
	Total  int
	Err    error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d of %d cases failed: %v", e.Failed, e.Total, e.Err)
	}
	return fmt.Sprintf("%d of %d cases failed", e.Failed, e.Total)
}

func (e *RunError) Unwrap() error { return e.Err }
