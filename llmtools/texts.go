package llmtools

import (
	"strings"

	"github.com/lemon-mint/structllm/llm"
)

// TextFromContents joins the text parts of c, skipping anything else.
func TextFromContents(c *llm.Content) string {
	if c == nil {
		return ""
	}

	var sb strings.Builder

	for i := range c.Parts {
		if c.Parts[i].Type() == llm.SegmentTypeText {
			sb.WriteString(string(c.Parts[i].(llm.Text)))
		}
	}

	return sb.String()
}

// Flatten renders a whole conversation as one block of text, for backends
// that only take a single prompt string. Non-empty pieces are separated by
// a blank line.
func Flatten(system string, chat *llm.ChatContext, input *llm.Content) string {
	var sb strings.Builder
	write := func(s string) {
		if s == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s)
	}

	write(system)
	if chat != nil {
		write(chat.SystemInstruction)
		for _, c := range chat.Contents {
			write(TextFromContents(c))
		}
	}
	write(TextFromContents(input))
	return sb.String()
}
