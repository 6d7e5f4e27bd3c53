package schema

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/goccy/go-yaml"
	"github.com/valyala/fastjson"
)

type Field struct {
	Name string
	Type *Type
}

// Descriptor is an ordered set of required fields together with its
// rendered JSON Schema document. It is immutable and safe to share.
type Descriptor struct {
	title  string
	fields []Field
	index  map[string]int
	doc    []byte
}

func (d *Descriptor) Title() string { return d.title }

func (d *Descriptor) Len() int { return len(d.fields) }

// Fields returns a copy of the fields in declaration order.
func (d *Descriptor) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

func (d *Descriptor) Lookup(name string) (*Type, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.fields[i].Type, true
}

// Required lists every field name; no field is optional.
func (d *Descriptor) Required() []string {
	names := make([]string, len(d.fields))
	for i := range d.fields {
		names[i] = d.fields[i].Name
	}
	return names
}

// Document returns the compact JSON Schema document.
func (d *Descriptor) Document() []byte {
	return bytes.Clone(d.doc)
}

func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return d.Document(), nil
}

// String returns the document indented by two spaces, the form embedded in
// prompts and shown to users.
func (d *Descriptor) String() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.doc, "", "  "); err != nil {
		return string(d.doc)
	}
	return buf.String()
}

// YAML renders the document as YAML, keeping property order.
func (d *Descriptor) YAML() (string, error) {
	out, err := yaml.JSONToYAML(d.doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (d *Descriptor) render() []byte {
	var a fastjson.Arena

	root := a.NewObject()
	root.Set("title", a.NewString(d.title))
	root.Set("type", a.NewString("object"))

	props := a.NewObject()
	for _, f := range d.fields {
		p := a.NewObject()
		p.Set("title", a.NewString(FieldTitle(f.Name)))
		f.Type.setSchema(&a, p)
		props.Set(f.Name, p)
	}
	root.Set("properties", props)

	required := a.NewArray()
	for i, f := range d.fields {
		required.SetArrayItem(i, a.NewString(f.Name))
	}
	root.Set("required", required)

	return root.MarshalTo(nil)
}

func (t *Type) setSchema(a *fastjson.Arena, o *fastjson.Value) {
	switch t.Kind {
	case KindAny:
	case KindList:
		o.Set("type", a.NewString("array"))
		items := a.NewObject()
		t.Elem.setSchema(a, items)
		o.Set("items", items)
	case KindUnion:
		anyOf := a.NewArray()
		for i, v := range t.Variants {
			vo := a.NewObject()
			v.setSchema(a, vo)
			anyOf.SetArrayItem(i, vo)
		}
		o.Set("anyOf", anyOf)
	default:
		o.Set("type", a.NewString(t.Kind.JSONType()))
	}
}

// FieldTitle turns a field name into a display title: underscores become
// spaces and each word is capitalised ("product_id" -> "Product Id").
func FieldTitle(name string) string {
	var sb strings.Builder
	prevLetter := false
	for _, r := range strings.ReplaceAll(name, "_", " ") {
		if unicode.IsLetter(r) {
			if prevLetter {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		sb.WriteRune(r)
		prevLetter = false
	}
	return sb.String()
}
