package vertexai

import (
	"context"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/llmtools"
)

var _ llm.Model = (*endpointModel)(nil)

// endpointModel calls a model deployed to a Vertex AI endpoint, such as a
// vLLM or text-generation-inference container.
type endpointModel struct {
	client   *aiplatform.PredictionClient
	config   *llm.Config
	endpoint string
	model    string
}

func (g *vertexAIClient) endpointName(model string) (string, bool) {
	switch {
	case strings.HasPrefix(model, "projects/") && strings.Contains(model, "/endpoints/"):
		return model, true
	case strings.HasPrefix(model, "endpoints/"):
		return fmt.Sprintf("projects/%s/locations/%s/%s", g.projectID, g.location, model), true
	}
	return "", false
}

func (g *endpointModel) instance(prompt string) (*structpb.Value, error) {
	req := map[string]interface{}{
		"prompt":     prompt,
		"max_tokens": g.config.MaxTokens(4000),
	}
	if g.config.Temperature != nil {
		req["temperature"] = float64(*g.config.Temperature)
	}
	if g.config.TopP != nil {
		req["top_p"] = float64(*g.config.TopP)
	}
	if g.config.TopK != nil {
		req["top_k"] = *g.config.TopK
	}
	return structpb.NewValue(req)
}

// predictionText pulls generated text out of the shapes common serving
// containers return.
func predictionText(v *structpb.Value) (string, bool) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, true
	case *structpb.Value_ListValue:
		if vs := k.ListValue.GetValues(); len(vs) > 0 {
			return predictionText(vs[0])
		}
	case *structpb.Value_StructValue:
		fields := k.StructValue.GetFields()
		for _, key := range []string{"content", "generated_text", "output", "text"} {
			if f, ok := fields[key]; ok {
				return predictionText(f)
			}
		}
	}
	return "", false
}

func (g *endpointModel) GenerateStream(ctx context.Context, chat *llm.ChatContext, input *llm.Content) *llm.StreamContent {
	if chat == nil {
		chat = &llm.ChatContext{}
	}

	promptValue, err := g.instance(llmtools.Flatten(g.config.SystemInstruction, chat, input))
	if err != nil {
		return llm.Failed(err)
	}

	stream := make(chan llm.Segment, 1)
	v := &llm.StreamContent{
		Content: &llm.Content{},
		Stream:  stream,
	}

	go func() {
		defer close(stream)

		resp, err := g.client.Predict(ctx, &aiplatformpb.PredictRequest{
			Endpoint:  g.endpoint,
			Instances: []*structpb.Value{promptValue},
		})
		if err != nil {
			v.Err = err
			v.FinishReason = llm.FinishReasonError
			return
		}

		if len(resp.Predictions) == 0 {
			v.Err = llm.ErrNoResponse
			return
		}
		text, ok := predictionText(resp.Predictions[0])
		if !ok {
			v.Err = llm.ErrInvalidResponse
			return
		}

		select {
		case stream <- llm.Text(text):
		case <-ctx.Done():
			v.Err = ctx.Err()
			return
		}

		v.Content = llm.TextContent(llm.RoleModel, text)
		v.FinishReason = llm.FinishReasonStop
	}()

	return v
}

func (g *endpointModel) Name() string {
	return g.model
}

func (g *endpointModel) Close() error {
	return nil
}
