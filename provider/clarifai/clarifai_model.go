package clarifai

import (
	"context"
	"net/http"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/lemon-mint/structllm/internal/llmutils"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/llmtools"
)

var _ llm.Model = (*clarifaiModel)(nil)

type clarifaiModel struct {
	client *ClarifaiClient
	ref    modelRef
	name   string
	config *llm.Config
}

func (m *clarifaiModel) params() map[string]any {
	params := map[string]any{
		"max_tokens": m.config.MaxTokens(4000),
	}
	if m.config.Temperature != nil {
		params["temperature"] = *m.config.Temperature
	}
	if m.config.TopP != nil {
		params["top_p"] = *m.config.TopP
	}
	if m.config.TopK != nil {
		params["top_k"] = *m.config.TopK
	}
	if len(m.config.StopSequences) > 0 {
		params["stop"] = m.config.StopSequences
	}
	return params
}

func (m *clarifaiModel) GenerateStream(ctx context.Context, chat *llm.ChatContext, input *llm.Content) *llm.StreamContent {
	if chat == nil {
		chat = &llm.ChatContext{}
	}

	stream := make(chan llm.Segment, 1)
	v := &llm.StreamContent{
		Content: &llm.Content{},
		Stream:  stream,
	}

	go func() {
		defer close(stream)

		req := predictRequest{
			Inputs: []apiInput{{Data: apiData{Text: &apiText{
				Raw: llmtools.Flatten(m.config.SystemInstruction, chat, input),
			}}}},
			Model: &modelParams{ModelVersion: modelVersion{
				OutputInfo: outputInfo{Params: m.params()},
			}},
		}

		var text string
		err := m.client.api.do(ctx, http.MethodPost, m.ref.outputsPath(), nil, "", req, func(r *fastjson.Value) error {
			outputs := r.GetArray("outputs")
			if len(outputs) == 0 {
				return llm.ErrNoResponse
			}
			if code := outputs[0].GetInt("status", "code"); code != 0 && code != statusSuccess {
				apiErr := &APIError{StatusCode: http.StatusOK}
				fillStatus(apiErr, outputs[0])
				return apiErr
			}
			text = string(outputs[0].GetStringBytes("data", "text", "raw"))
			return nil
		})
		if err != nil {
			m.client.logger.Debug("predict failed",
				zap.String("model", m.ref.ModelID),
				zap.Error(err))
			v.Err = err
			v.FinishReason = llm.FinishReasonError
			return
		}

		if !llmutils.Emit(ctx.Done(), stream, llm.Text(text)) {
			v.Err = ctx.Err()
			return
		}

		v.Content = llm.TextContent(llm.RoleModel, text)
		v.FinishReason = llm.FinishReasonStop
	}()

	return v
}

func (m *clarifaiModel) Name() string {
	return m.name
}

func (m *clarifaiModel) Close() error {
	return nil
}
