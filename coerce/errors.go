package coerce

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteFailure marks a failed or timed out model call. No output
	// was produced.
	ErrRemoteFailure = errors.New("remote model call failed")
	// ErrParseFailure marks a reply that is not a JSON object, or that does
	// not satisfy the schema in strict mode.
	ErrParseFailure = errors.New("model output is not valid JSON")

	ErrNotObject = errors.New("JSON value is not an object")
	ErrEmptyText = errors.New("model returned no text")
)

type RemoteError struct {
	Model string
	Err   error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	return []error{ErrRemoteFailure, e.Err}
}

// ParseError carries the model's reply exactly as it was received.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrParseFailure, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParseFailure, e.Err}
}
