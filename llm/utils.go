package llm

import (
	"strings"
)

func TextContent(role Role, text string) *Content {
	return &Content{
		Role: role,
		Parts: []Segment{
			Text(text),
		},
	}
}

// Text returns the text content of the segment.
// Note: This function must be called after the Stream channel is closed.
func (g *StreamContent) Text() string {
	if g == nil || g.Content == nil {
		return ""
	}

	var sb strings.Builder

	for i := range g.Content.Parts {
		if g.Content.Parts[i].Type() == SegmentTypeText {
			sb.WriteString(string(g.Content.Parts[i].(Text)))
		}
	}

	return sb.String()
}

// Failed returns a StreamContent whose stream is already closed and which
// carries err. Providers use it when a request cannot even be started.
func Failed(err error) *StreamContent {
	ch := make(chan Segment)
	close(ch)
	return &StreamContent{
		Err:          err,
		Content:      &Content{},
		FinishReason: FinishReasonError,
		Stream:       ch,
	}
}
