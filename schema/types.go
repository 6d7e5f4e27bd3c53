package schema

import (
	"strings"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindInteger
	KindString
	KindFloat
	KindBoolean
	KindNull
	KindAny
	KindList
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "int"
	case KindString:
		return "str"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "bool"
	case KindNull:
		return "None"
	case KindAny:
		return "Any"
	case KindList:
		return "List"
	case KindUnion:
		return "Union"
	}
	return "invalid"
}

// Type is a resolved field type. Elem is set for KindList, Variants for
// KindUnion. Values are immutable once returned by ParseType.
type Type struct {
	Kind     Kind
	Elem     *Type
	Variants []*Type
}

var (
	typeInteger = &Type{Kind: KindInteger}
	typeString  = &Type{Kind: KindString}
	typeFloat   = &Type{Kind: KindFloat}
	typeBoolean = &Type{Kind: KindBoolean}
	typeNull    = &Type{Kind: KindNull}
	typeAny     = &Type{Kind: KindAny}
)

func Integer() *Type { return typeInteger }
func String() *Type  { return typeString }
func Float() *Type   { return typeFloat }
func Boolean() *Type { return typeBoolean }

func ListOf(elem *Type) *Type {
	if elem == nil {
		elem = typeAny
	}
	return &Type{Kind: KindList, Elem: elem}
}

// UnionOf flattens nested unions, drops duplicate members and collapses a
// single member union to that member.
func UnionOf(variants ...*Type) *Type {
	flat := make([]*Type, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))

	var add func(t *Type)
	add = func(t *Type) {
		if t.Kind == KindUnion {
			for _, v := range t.Variants {
				add(v)
			}
			return
		}
		key := t.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		flat = append(flat, t)
	}
	for _, v := range variants {
		if v != nil {
			add(v)
		}
	}

	// None always goes last so Optional[int] and Union[None, int] render alike.
	for i, v := range flat {
		if v.Kind == KindNull && i != len(flat)-1 {
			flat = append(append(flat[:i:i], flat[i+1:]...), v)
			break
		}
	}

	if len(flat) == 1 {
		return flat[0]
	}
	return &Type{Kind: KindUnion, Variants: flat}
}

func Optional(t *Type) *Type {
	return UnionOf(t, typeNull)
}

// Nullable reports whether None is an accepted value.
func (t *Type) Nullable() bool {
	switch t.Kind {
	case KindNull:
		return true
	case KindUnion:
		for _, v := range t.Variants {
			if v.Kind == KindNull {
				return true
			}
		}
	}
	return false
}

// String returns the canonical type expression; ParseType(t.String())
// yields an equal Type.
func (t *Type) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *Type) write(sb *strings.Builder) {
	switch t.Kind {
	case KindList:
		sb.WriteString("List")
		if t.Elem != nil && t.Elem.Kind != KindAny {
			sb.WriteByte('[')
			t.Elem.write(sb)
			sb.WriteByte(']')
		}
	case KindUnion:
		if len(t.Variants) == 2 && t.Variants[1].Kind == KindNull {
			sb.WriteString("Optional[")
			t.Variants[0].write(sb)
			sb.WriteByte(']')
			return
		}
		sb.WriteString("Union[")
		for i, v := range t.Variants {
			if i > 0 {
				sb.WriteString(", ")
			}
			v.write(sb)
		}
		sb.WriteByte(']')
	default:
		sb.WriteString(t.Kind.String())
	}
}

// JSONType returns the JSON Schema "type" keyword for scalar kinds.
func (k Kind) JSONType() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindFloat:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindNull:
		return "null"
	case KindList:
		return "array"
	}
	return ""
}
