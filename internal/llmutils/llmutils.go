package llmutils

import (
	"github.com/lemon-mint/structllm/llm"
)

// MergeTexts joins adjacent text segments so a streamed reply ends up as
// one Text part per run.
func MergeTexts(p []llm.Segment) []llm.Segment {
	if len(p) < 2 {
		return p
	}

	merged := make([]llm.Segment, 0, len(p))
	for i := range p {
		if p[i].Type() == llm.SegmentTypeText &&
			len(merged) > 0 &&
			merged[len(merged)-1].Type() == llm.SegmentTypeText {
			merged[len(merged)-1] = merged[len(merged)-1].(llm.Text) + p[i].(llm.Text)
		} else {
			merged = append(merged, p[i])
		}
	}

	return merged
}

// Emit sends seg on stream unless done is closed first.
func Emit(done <-chan struct{}, stream chan<- llm.Segment, seg llm.Segment) bool {
	select {
	case stream <- seg:
		return true
	case <-done:
		return false
	}
}
