package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"int", "int"},
		{"integer", "int"},
		{" str ", "str"},
		{"float", "float"},
		{"number", "float"},
		{"bool", "bool"},
		{"List", "List"},
		{"list", "List"},
		{"List[int]", "List[int]"},
		{"typing.List[str]", "List[str]"},
		{"Optional[int]", "Optional[int]"},
		{"Union[int, str]", "Union[int, str]"},
		{"Union[int]", "int"},
		{"Union[int, int]", "int"},
		{"Union[int, None]", "Optional[int]"},
		{"Union[None, int]", "Optional[int]"},
		{"Union[int, Union[str, float]]", "Union[int, str, float]"},
		{"Optional[Optional[int]]", "Optional[int]"},
		{"List[Union[int, str]]", "List[Union[int, str]]"},
		{"Union[int, Optional[str]]", "Union[int, str, None]"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseType(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())

			again, err := ParseType(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseType_Rejects(t *testing.T) {
	exprs := []string{
		"",
		"   ",
		"import os",
		"__import__('os')",
		"os.system",
		"eval",
		"int()",
		"List[",
		"List[int",
		"List[int]]",
		"Union[]",
		"Union[None]",
		"None",
		"Optional",
		"Union",
		"Dict[str, int]",
		"List[int, str]",
		"Optional[None]",
		"int; rm -rf /",
		"lambda: 0",
		"1",
		"str.__class__",
		"typing.Any",
		"Ｉnt",
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			got, err := ParseType(expr)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrInvalidType)

			var te *TypeError
			assert.ErrorAs(t, err, &te)
		})
	}
}

func TestParseType_Limits(t *testing.T) {
	deep := "int"
	for i := 0; i < maxDepth+1; i++ {
		deep = "List[" + deep + "]"
	}
	_, err := ParseType(deep)
	assert.ErrorIs(t, err, ErrInvalidType)

	long := make([]byte, maxExpressionLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = ParseType(string(long))
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestTypeErrorPosition(t *testing.T) {
	_, err := ParseType("List[int, str]")

	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 8, te.Pos)
	assert.Contains(t, te.Error(), `expected "]"`)
}
