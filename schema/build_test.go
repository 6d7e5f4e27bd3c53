package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func TestBuild_Document(t *testing.T) {
	d, err := Build([]FieldSpec{
		{Name: "product_id", Type: "int"},
		{Name: "name", Type: "str"},
		{Name: "tags", Type: "List[str]"},
		{Name: "price", Type: "Union[int, float]"},
		{Name: "discount", Type: "Optional[float]"},
		{Name: "extra", Type: "List"},
	})
	require.NoError(t, err)

	want := `{
  "title": "DynamicProduct",
  "type": "object",
  "properties": {
    "product_id": {"title": "Product Id", "type": "integer"},
    "name": {"title": "Name", "type": "string"},
    "tags": {"title": "Tags", "type": "array", "items": {"type": "string"}},
    "price": {"title": "Price", "anyOf": [{"type": "integer"}, {"type": "number"}]},
    "discount": {"title": "Discount", "anyOf": [{"type": "number"}, {"type": "null"}]},
    "extra": {"title": "Extra", "type": "array", "items": {}}
  },
  "required": ["product_id", "name", "tags", "price", "discount", "extra"]
}`
	assert.JSONEq(t, want, string(d.Document()))
	assert.Equal(t, []string{"product_id", "name", "tags", "price", "discount", "extra"}, d.Required())
	assert.Equal(t, 6, d.Len())

	// property order follows the input, not the alphabet
	s := d.String()
	assert.Less(t, indexOf(s, `"product_id"`), indexOf(s, `"name"`))
	assert.Less(t, indexOf(s, `"name"`), indexOf(s, `"tags"`))
}

func TestBuild_DefaultField(t *testing.T) {
	d, err := Build([]FieldSpec{{Name: "response", Type: "str"}})
	require.NoError(t, err)

	typ, ok := d.Lookup("response")
	require.True(t, ok)
	assert.Equal(t, KindString, typ.Kind)
	assert.JSONEq(t,
		`{"title":"DynamicProduct","type":"object","properties":{"response":{"title":"Response","type":"string"}},"required":["response"]}`,
		string(d.Document()))
}

func TestBuild_PartialSuccess(t *testing.T) {
	d, err := Build([]FieldSpec{
		{Name: "ok", Type: "int"},
		{Name: "evil", Type: "__import__('os').system('id')"},
		{Name: "", Type: "str"},
		{Name: "also_ok", Type: "bool"},
	})
	require.NotNil(t, d)
	require.Error(t, err)

	assert.Equal(t, []string{"ok", "also_ok"}, d.Required())

	var fe FieldErrors
	require.ErrorAs(t, err, &fe)
	require.Len(t, fe, 2)
	assert.Equal(t, 1, fe[0].Index)
	assert.Equal(t, "evil", fe[0].Field)
	assert.ErrorIs(t, fe[0], ErrInvalidType)
	assert.Equal(t, 2, fe[1].Index)
	assert.ErrorIs(t, fe[1], ErrEmptyName)

	assert.ErrorIs(t, err, ErrInvalidType)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestBuild_AllInvalid(t *testing.T) {
	d, err := Build([]FieldSpec{{Name: "x", Type: "import os"}})
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestBuild_Bounds(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrNoFields)

	fields := make([]FieldSpec, DefaultMaxFields+1)
	for i := range fields {
		fields[i] = FieldSpec{Name: fmt.Sprintf("f%d", i), Type: "int"}
	}
	_, err = Build(fields)
	assert.ErrorIs(t, err, ErrTooManyFields)

	d, err := Build(fields, WithMaxFields(20))
	require.NoError(t, err)
	assert.Equal(t, len(fields), d.Len())
}

func TestBuild_DuplicateLastWriteWins(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	d, err := Build([]FieldSpec{
		{Name: "a", Type: "int"},
		{Name: "b", Type: "str"},
		{Name: "a", Type: "List[str]"},
	}, WithLogger(zap.New(core)))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, d.Required())
	typ, _ := d.Lookup("a")
	assert.Equal(t, "List[str]", typ.String())
	assert.Equal(t, 1, logs.FilterMessage("field redefined, later type wins").Len())
}

func TestBuild_RejectDuplicates(t *testing.T) {
	d, err := Build([]FieldSpec{
		{Name: "a", Type: "int"},
		{Name: "a", Type: "str"},
	}, WithRejectDuplicates())
	require.NotNil(t, d)
	assert.ErrorIs(t, err, ErrDuplicateField)

	typ, _ := d.Lookup("a")
	assert.Equal(t, KindInteger, typ.Kind)
}

func TestBuild_Title(t *testing.T) {
	d, err := Build([]FieldSpec{{Name: "x", Type: "int"}}, WithTitle("Product"))
	require.NoError(t, err)
	assert.Equal(t, "Product", d.Title())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(d.Document(), &doc))
	assert.Equal(t, "Product", doc["title"])
}

func TestDescriptor_YAML(t *testing.T) {
	d, err := Build([]FieldSpec{{Name: "b", Type: "int"}, {Name: "a", Type: "str"}})
	require.NoError(t, err)

	out, err := d.YAML()
	require.NoError(t, err)
	assert.Contains(t, out, "title: DynamicProduct")
	assert.Less(t, indexOf(out, "b:"), indexOf(out, "a:"))
}

func TestFieldTitle(t *testing.T) {
	assert.Equal(t, "Product Id", FieldTitle("product_id"))
	assert.Equal(t, "Response", FieldTitle("response"))
	assert.Equal(t, "Userid", FieldTitle("userID"))
	assert.Equal(t, "A1B", FieldTitle("a1b"))
}

var (
	genScalar = rapid.SampledFrom([]string{"int", "str", "float", "bool", "integer", "string", "number", "boolean"})
	genType   = rapid.Custom(func(t *rapid.T) string {
		s := genScalar.Draw(t, "scalar")
		switch rapid.IntRange(0, 4).Draw(t, "shape") {
		case 1:
			return "List[" + s + "]"
		case 2:
			return "Optional[" + s + "]"
		case 3:
			return "Union[" + s + ", " + genScalar.Draw(t, "other") + "]"
		case 4:
			return "List"
		}
		return s
	})
)

func TestBuild_RequiredMatchesInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z][a-z0-9_]{0,11}`), 1, 10, rapid.ID[string]).Draw(rt, "names")

		fields := make([]FieldSpec, len(names))
		for i, n := range names {
			fields[i] = FieldSpec{Name: n, Type: genType.Draw(rt, "type")}
		}

		d, err := Build(fields)
		if err != nil {
			rt.Fatalf("Build(%v): %v", fields, err)
		}

		var doc struct {
			Required   []string                   `json:"required"`
			Properties map[string]json.RawMessage `json:"properties"`
		}
		if err := json.Unmarshal(d.Document(), &doc); err != nil {
			rt.Fatalf("document is not JSON: %v", err)
		}

		if len(doc.Required) != len(names) {
			rt.Fatalf("required = %v, want %v", doc.Required, names)
		}
		for i := range names {
			if doc.Required[i] != names[i] {
				rt.Fatalf("required = %v, want %v", doc.Required, names)
			}
			if _, ok := doc.Properties[names[i]]; !ok {
				rt.Fatalf("property %q missing", names[i])
			}
		}
	})
}

func TestBuild_NeverAcceptsOutsideGrammar(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		expr := rapid.StringMatching(`[a-zA-Z_(). '";]{1,24}`).Draw(rt, "expr")

		_, err := ParseType(expr)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrInvalidType) {
			rt.Fatalf("ParseType(%q) = %v, want ErrInvalidType", expr, err)
		}
	})
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
