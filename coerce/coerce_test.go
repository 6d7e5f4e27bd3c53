package coerce

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/schema"
)

type stubModel struct {
	chunks []string
	err    error
	block  bool

	prompt string
}

var _ llm.Model = (*stubModel)(nil)

func (m *stubModel) GenerateStream(ctx context.Context, _ *llm.ChatContext, input *llm.Content) *llm.StreamContent {
	m.prompt = string(input.Parts[0].(llm.Text))

	stream := make(chan llm.Segment)
	v := &llm.StreamContent{Stream: stream}

	go func() {
		defer close(stream)
		if m.block {
			<-ctx.Done()
			v.Err = ctx.Err()
			return
		}
		var parts []llm.Segment
		for _, c := range m.chunks {
			select {
			case stream <- llm.Text(c):
			case <-ctx.Done():
				v.Err = ctx.Err()
				return
			}
			parts = append(parts, llm.Text(c))
		}
		v.Err = m.err
		v.Content = &llm.Content{Role: llm.RoleModel, Parts: parts}
		v.FinishReason = llm.FinishReasonStop
		v.UsageData = &llm.UsageData{InputTokens: 3, OutputTokens: 5, TotalTokens: 8}
	}()

	return v
}

func (m *stubModel) Close() error { return nil }
func (m *stubModel) Name() string { return "stub" }

func responseSchema(t *testing.T) *schema.Descriptor {
	t.Helper()
	desc, err := schema.Build([]schema.FieldSpec{{Name: "response", Type: "str"}})
	require.NoError(t, err)
	return desc
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	model := &stubModel{chunks: []string{`{"respon`, `se": "ok"}`}}
	res, err := New(WithStrict(responseSchema(t))).Generate(context.Background(), model, "say ok")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"response": "ok"}, res.Object)
	assert.Equal(t, `{"response": "ok"}`, res.Raw)
	assert.Equal(t, llm.FinishReasonStop, res.FinishReason)
	assert.Equal(t, 8, res.Usage.TotalTokens)
	assert.Equal(t, "say ok", model.prompt)
}

func TestGenerate_ParseFailure(t *testing.T) {
	t.Parallel()

	model := &stubModel{chunks: []string{"not json at all"}}
	res, err := New().Generate(context.Background(), model, "say ok")

	require.ErrorIs(t, err, ErrParseFailure)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "not json at all", pe.Raw)

	require.NotNil(t, res)
	assert.Equal(t, "not json at all", res.Raw)
	assert.Nil(t, res.Object)
}

func TestGenerate_RemoteFailure(t *testing.T) {
	t.Parallel()

	model := &stubModel{err: llm.ErrRateLimit}
	res, err := New().Generate(context.Background(), model, "say ok")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrRemoteFailure)
	assert.ErrorIs(t, err, llm.ErrRateLimit)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "stub", re.Model)
}

func TestGenerate_Timeout(t *testing.T) {
	t.Parallel()

	res, err := New(WithTimeout(20*time.Millisecond)).Generate(context.Background(), &stubModel{block: true}, "hang")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrRemoteFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParse(t *testing.T) {
	t.Parallel()

	c := New()

	tests := []struct {
		name string
		raw  string
		want map[string]any
		err  error
	}{
		{"object", `{"a": 1, "b": [true, null]}`, map[string]any{"a": json.Number("1"), "b": []any{true, nil}}, nil},
		{"fenced", "```json\n{\"a\": \"x\"}\n```", map[string]any{"a": "x"}, nil},
		{"bare fence", "```\n{\"a\": \"x\"}\n```\n", map[string]any{"a": "x"}, nil},
		{"padded", "\n  {\"a\": 2.5}  \n", map[string]any{"a": json.Number("2.5")}, nil},
		{"array", `[1, 2]`, nil, ErrNotObject},
		{"string", `"hello"`, nil, ErrNotObject},
		{"empty", "   ", nil, ErrEmptyText},
		{"trailing", `{"a": 1} trailing`, nil, ErrParseFailure},
		{"prose", `Sure! Here it is: {"a": 1}`, nil, ErrParseFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Parse(tt.raw)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				require.ErrorIs(t, err, ErrParseFailure)
				var pe *ParseError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.raw, pe.Raw)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Strict(t *testing.T) {
	t.Parallel()

	desc, err := schema.Build([]schema.FieldSpec{
		{Name: "name", Type: "str"},
		{Name: "age", Type: "int"},
	})
	require.NoError(t, err)

	c := New(WithStrict(desc))

	_, err = c.Parse(`{"name": "Ada", "age": 36}`)
	assert.NoError(t, err)

	_, err = c.Parse(`{"name": "Ada"}`)
	assert.ErrorIs(t, err, ErrParseFailure)
	assert.ErrorIs(t, err, schema.ErrMissingField)

	_, err = c.Parse(`{"name": "Ada", "age": 36.5}`)
	assert.ErrorIs(t, err, schema.ErrTypeMismatch)

	// without a strict schema only JSON syntax matters
	_, err = New().Parse(`{"name": "Ada"}`)
	assert.NoError(t, err)
}

func TestStripFence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, StripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFence("```JSON\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFence("```{\"a\":1}```"))
	assert.Equal(t, "no fence", StripFence("no fence"))
	assert.Equal(t, "```", StripFence("```"))
}

func TestErrors(t *testing.T) {
	t.Parallel()

	err := &ParseError{Raw: "x", Err: ErrNotObject}
	assert.True(t, errors.Is(err, ErrParseFailure))
	assert.False(t, errors.Is(err, ErrRemoteFailure))
	assert.Contains(t, err.Error(), "not an object")
}

func TestGenerateWith(t *testing.T) {
	t.Parallel()

	model := &stubModel{chunks: []string{`{"other": 1}`}}

	_, err := New().GenerateWith(context.Background(), model, "p", responseSchema(t))
	assert.ErrorIs(t, err, schema.ErrMissingField)

	res, err := New(WithStrict(responseSchema(t))).GenerateWith(context.Background(), model, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"other": json.Number("1")}, res.Object)
}
