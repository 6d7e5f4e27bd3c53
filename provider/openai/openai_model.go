package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/lemon-mint/structllm/internal/llmutils"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/llmtools"
)

var _ llm.Model = (*openAIModel)(nil)

var (
	errEmptyContent   error = errors.New("openai: empty content")
	errInvalidContent error = errors.New("openai: invalid content")
)

func convertContent(dst []openai.ChatCompletionMessage, content *llm.Content) ([]openai.ChatCompletionMessage, error) {
	if content == nil || len(content.Parts) == 0 {
		return dst, errEmptyContent
	}

	var role string
	switch content.Role {
	case llm.RoleUser:
		role = openai.ChatMessageRoleUser
	case llm.RoleModel:
		role = openai.ChatMessageRoleAssistant
	default:
		return dst, errInvalidContent
	}

	return append(dst, openai.ChatCompletionMessage{
		Role:    role,
		Content: llmtools.TextFromContents(content),
	}), nil
}

func convertContext(system string, chat *llm.ChatContext, input *llm.Content) ([]openai.ChatCompletionMessage, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(chat.Contents)+3)
	for _, s := range []string{system, chat.SystemInstruction} {
		if s != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: s,
			})
		}
	}

	var err error
	for i := range chat.Contents {
		if msgs, err = convertContent(msgs, chat.Contents[i]); err != nil {
			return nil, err
		}
	}
	return convertContent(msgs, input)
}

// wrapError attaches the llm sentinel for the response status.
func wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", llm.ErrorByStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", llm.ErrorByStatus(reqErr.HTTPStatusCode), err)
	}
	return err
}

func finishReason(r openai.FinishReason) llm.FinishReason {
	switch r {
	case openai.FinishReasonLength:
		return llm.FinishReasonMaxTokens
	case openai.FinishReasonContentFilter:
		return llm.FinishReasonSafety
	case openai.FinishReasonStop:
		return llm.FinishReasonStop
	}
	return llm.FinishReasonUnknown
}

func (g *openAIModel) GenerateStream(ctx context.Context, chat *llm.ChatContext, input *llm.Content) *llm.StreamContent {
	if chat == nil {
		chat = &llm.ChatContext{}
	}

	contents, err := convertContext(g.config.SystemInstruction, chat, input)
	if err != nil {
		return llm.Failed(err)
	}

	req := openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  contents,
		Stop:      g.config.StopSequences,
		MaxTokens: g.config.MaxTokens(4000),
		Stream:    true,
	}
	if g.config.Temperature != nil {
		req.Temperature = *g.config.Temperature
	}
	if g.config.TopP != nil {
		req.TopP = *g.config.TopP
	}
	if g.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	iter, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return llm.Failed(wrapError(err))
	}

	stream := make(chan llm.Segment, 128)
	v := &llm.StreamContent{
		Content: &llm.Content{Role: llm.RoleModel},
		Stream:  stream,
	}

	go func() {
		defer close(stream)
		defer iter.Close()
		defer func() {
			v.Content.Parts = llmutils.MergeTexts(v.Content.Parts)
		}()

		for {
			resp, err := iter.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				v.Err = wrapError(err)
				v.FinishReason = llm.FinishReasonError
				return
			}

			if resp.Usage != nil {
				v.UsageData = &llm.UsageData{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				}
			}

			if len(resp.Choices) == 0 {
				continue
			}
			if r := resp.Choices[0].FinishReason; r != "" {
				v.FinishReason = finishReason(r)
			}

			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !llmutils.Emit(ctx.Done(), stream, llm.Text(delta)) {
				v.Err = ctx.Err()
				return
			}
			v.Content.Parts = append(v.Content.Parts, llm.Text(delta))
		}
	}()

	return v
}

type openAIModel struct {
	client *openai.Client
	config *llm.Config
	model  string
}

func (o *openAIModel) Name() string {
	return o.model
}

func (g *openAIModel) Close() error {
	return nil
}
