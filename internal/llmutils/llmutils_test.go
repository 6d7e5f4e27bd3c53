package llmutils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lemon-mint/structllm/llm"
)

func TestMergeTexts(t *testing.T) {
	in := []llm.Segment{llm.Text("{\"a\""), llm.Text(": 1"), llm.Text("}")}
	out := MergeTexts(in)

	assert.Equal(t, []llm.Segment{llm.Text("{\"a\": 1}")}, out)
}

func TestMergeTexts_Short(t *testing.T) {
	assert.Nil(t, MergeTexts(nil))

	one := []llm.Segment{llm.Text("x")}
	assert.Equal(t, one, MergeTexts(one))
}

func TestEmit_Done(t *testing.T) {
	done := make(chan struct{})
	close(done)

	stream := make(chan llm.Segment)
	assert.False(t, Emit(done, stream, llm.Text("x")))
}
