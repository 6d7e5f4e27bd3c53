package schema

import (
	"encoding/json"
	"math"
)

// Validate checks that obj carries every field with a value of the declared
// kind. It returns FieldErrors wrapping ErrMissingField or ErrTypeMismatch.
// Keys not in the descriptor are ignored.
func (d *Descriptor) Validate(obj map[string]any) error {
	var errs FieldErrors
	for _, f := range d.fields {
		v, ok := obj[f.Name]
		if !ok {
			errs = append(errs, &FieldError{Index: -1, Field: f.Name, Expression: f.Type.String(), Err: ErrMissingField})
			continue
		}
		if !f.Type.Accepts(v) {
			errs = append(errs, &FieldError{Index: -1, Field: f.Name, Expression: f.Type.String(), Err: ErrTypeMismatch})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Accepts reports whether a decoded JSON value matches t. Numbers may be
// json.Number or float64.
func (t *Type) Accepts(v any) bool {
	switch t.Kind {
	case KindAny:
		return true
	case KindNull:
		return v == nil
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindFloat:
		_, ok := number(v)
		return ok
	case KindInteger:
		f, ok := number(v)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case KindList:
		items, ok := v.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if !t.Elem.Accepts(item) {
				return false
			}
		}
		return true
	case KindUnion:
		for _, variant := range t.Variants {
			if variant.Accepts(v) {
				return true
			}
		}
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
