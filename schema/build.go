package schema

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	DefaultMaxFields = 10
	DefaultTitle     = "DynamicProduct"
)

// FieldSpec is one user supplied (name, type expression) pair.
type FieldSpec struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

type buildOptions struct {
	maxFields        int
	title            string
	rejectDuplicates bool
	logger           *zap.Logger
}

type Option func(*buildOptions)

// WithMaxFields bounds the number of FieldSpecs accepted by Build.
func WithMaxFields(n int) Option {
	return func(o *buildOptions) {
		if n > 0 {
			o.maxFields = n
		}
	}
}

func WithTitle(title string) Option {
	return func(o *buildOptions) {
		if title != "" {
			o.title = title
		}
	}
}

// WithRejectDuplicates reports a repeated field name as ErrDuplicateField
// instead of letting the later spec replace the earlier one.
func WithRejectDuplicates() Option {
	return func(o *buildOptions) {
		o.rejectDuplicates = true
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Build resolves fields into a Descriptor. Every field is required.
//
// Invalid fields do not stop the others from being resolved: the returned
// Descriptor holds the fields that resolved and the error is a FieldErrors
// listing the rest. Descriptor is nil only when no field resolved or the
// batch itself is rejected (ErrNoFields, ErrTooManyFields).
//
// A name given twice keeps its first position and takes the later type.
func Build(fields []FieldSpec, opts ...Option) (*Descriptor, error) {
	o := buildOptions{
		maxFields: DefaultMaxFields,
		title:     DefaultTitle,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	if len(fields) > o.maxFields {
		return nil, fmt.Errorf("%w: got %d, limit is %d", ErrTooManyFields, len(fields), o.maxFields)
	}

	d := &Descriptor{
		title: o.title,
		index: make(map[string]int, len(fields)),
	}
	var errs FieldErrors

	for i, spec := range fields {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			errs = append(errs, &FieldError{Index: i, Field: spec.Name, Expression: spec.Type, Err: ErrEmptyName})
			continue
		}

		t, err := ParseType(spec.Type)
		if err != nil {
			errs = append(errs, &FieldError{Index: i, Field: name, Expression: spec.Type, Err: err})
			continue
		}

		if at, ok := d.index[name]; ok {
			if o.rejectDuplicates {
				errs = append(errs, &FieldError{Index: i, Field: name, Expression: spec.Type, Err: ErrDuplicateField})
				continue
			}
			o.logger.Debug("field redefined, later type wins",
				zap.String("field", name),
				zap.String("previous", d.fields[at].Type.String()),
				zap.String("type", t.String()))
			d.fields[at].Type = t
			continue
		}

		d.index[name] = len(d.fields)
		d.fields = append(d.fields, Field{Name: name, Type: t})
	}

	if len(d.fields) == 0 {
		return nil, errs
	}

	d.doc = d.render()

	if len(errs) > 0 {
		return d, errs
	}
	return d, nil
}
