package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidType    = errors.New("invalid type")
	ErrEmptyName      = errors.New("field name is empty")
	ErrDuplicateField = errors.New("duplicate field name")
	ErrNoFields       = errors.New("no fields")
	ErrTooManyFields  = errors.New("too many fields")
	ErrMissingField   = errors.New("required field missing")
	ErrTypeMismatch   = errors.New("value does not match field type")
)

// FieldError reports a problem with one field. Index is the position of the
// offending FieldSpec in the input, or -1 when the error comes from
// validating a value.
type FieldError struct {
	Index      int
	Field      string
	Expression string
	Err        error
}

func (e *FieldError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("field %d (%q): %v", e.Index+1, e.Field, e.Err)
	}
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// FieldErrors collects every per-field error of one call.
type FieldErrors []*FieldError

func (errs FieldErrors) Error() string {
	msgs := make([]string, len(errs))
	for i := range errs {
		msgs[i] = errs[i].Error()
	}
	return strings.Join(msgs, "; ")
}

func (errs FieldErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i := range errs {
		out[i] = errs[i]
	}
	return out
}

// Fields returns the names of the fields that failed, in input order.
func (errs FieldErrors) Fields() []string {
	names := make([]string, len(errs))
	for i := range errs {
		names[i] = errs[i].Field
	}
	return names
}
