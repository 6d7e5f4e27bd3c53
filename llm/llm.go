package llm

import (
	"context"
)

type UsageData struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Role string

const (
	RoleUser  = Role("user")
	RoleModel = Role("model")
)

type Content struct {
	Role  Role      `json:"role"`
	Parts []Segment `json:"parts"`
}

type SegmentType uint16

const (
	SegmentTypeUnknown SegmentType = iota
	SegmentTypeText
)

type Segment interface {
	Segment()
	Type() SegmentType
}

type Text string

func (Text) Segment()            {}
func (t Text) Type() SegmentType { return SegmentTypeText }

type ChatContext struct {
	Contents []*Content `json:"contents"`

	SystemInstruction string `json:"system_instruction,omitempty"`
}

type FinishReason string

const (
	FinishReasonUnknown    = FinishReason("unknown")
	FinishReasonError      = FinishReason("error")
	FinishReasonSafety     = FinishReason("safety")
	FinishReasonRecitation = FinishReason("recitation")
	FinishReasonStop       = FinishReason("stop")
	FinishReasonMaxTokens  = FinishReason("max_tokens")
)

type StreamContent struct {
	Err          error        `json:"error"`        // Only Available after Stream channel is closed
	Content      *Content     `json:"content"`      // Only Available after Stream channel is closed
	UsageData    *UsageData   `json:"usageData"`    // Only Available after Stream channel is closed (Note: UsageData is not available for all LLM providers)
	FinishReason FinishReason `json:"finishReason"` // Only Available after Stream channel is closed

	Stream <-chan Segment `json:"-"` // Token Stream
}

// Model is a text generation endpoint bound to one model and one Config.
type Model interface {
	GenerateStream(ctx context.Context, chat *ChatContext, input *Content) *StreamContent
	Close() error
	Name() string
}
