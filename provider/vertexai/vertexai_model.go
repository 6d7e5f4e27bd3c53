package vertexai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/internal/llmutils"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider"
)

var _ llm.Model = (*vertexAIModel)(nil)

func convertContentVertexAI(s *llm.Content) *genai.Content {
	content := &genai.Content{
		Role: string(s.Role),
	}

	for i := range s.Parts {
		if p, ok := s.Parts[i].(llm.Text); ok {
			content.Parts = append(content.Parts, genai.Text(p))
		}
	}

	return content
}

func convertContextVertexAI(c *llm.ChatContext) []*genai.Content {
	contents := make([]*genai.Content, len(c.Contents))
	for i := range c.Contents {
		contents[i] = convertContentVertexAI(c.Contents[i])
	}
	return contents
}

func convertVertexAIFinishReason(stop_reason genai.FinishReason) llm.FinishReason {
	switch stop_reason {
	case genai.FinishReasonStop:
		return llm.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.FinishReasonMaxTokens
	case genai.FinishReasonSafety:
		return llm.FinishReasonSafety
	case genai.FinishReasonRecitation:
		return llm.FinishReasonRecitation
	}
	return llm.FinishReasonUnknown
}

func (g *vertexAIModel) GenerateStream(ctx context.Context, chat *llm.ChatContext, input *llm.Content) *llm.StreamContent {
	if chat == nil {
		chat = &llm.ChatContext{}
	}

	model := g.client.GenerativeModel(g.model)

	if g.config.Temperature != nil {
		model.SetTemperature(*g.config.Temperature)
	}
	if g.config.TopK != nil {
		model.SetTopK(int32(*g.config.TopK))
	}
	if g.config.TopP != nil {
		model.SetTopP(*g.config.TopP)
	}
	model.SetMaxOutputTokens(int32(g.config.MaxTokens(4000)))
	model.StopSequences = g.config.StopSequences

	if system := strings.TrimSpace(g.config.SystemInstruction + "\n\n" + chat.SystemInstruction); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	session.History = convertContextVertexAI(chat)

	resp := session.SendMessageStream(ctx, convertContentVertexAI(input).Parts...)

	stream := make(chan llm.Segment, 128)
	v := &llm.StreamContent{
		Content: &llm.Content{Role: llm.RoleModel},
		Stream:  stream,
	}

	go func() {
		defer close(stream)
		defer func() {
			v.Content.Parts = llmutils.MergeTexts(v.Content.Parts)
		}()

		for {
			resp, err := resp.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				v.Err = err
				v.FinishReason = llm.FinishReasonError
				return
			}

			if resp.UsageMetadata != nil {
				v.UsageData = &llm.UsageData{
					InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
				}
			}

			if len(resp.Candidates) == 0 {
				v.FinishReason = llm.FinishReasonUnknown
				if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason == genai.BlockedReasonSafety {
					v.FinishReason = llm.FinishReasonSafety
				}
				v.Err = llm.ErrNoResponse
				return
			}

			cand := resp.Candidates[0]
			if cand.FinishReason != genai.FinishReasonUnspecified {
				v.FinishReason = convertVertexAIFinishReason(cand.FinishReason)
			}
			if cand.Content == nil {
				continue
			}

			for _, part := range cand.Content.Parts {
				t, ok := part.(genai.Text)
				if !ok {
					continue
				}
				if !llmutils.Emit(ctx.Done(), stream, llm.Text(t)) {
					v.Err = ctx.Err()
					return
				}
				v.Content.Parts = append(v.Content.Parts, llm.Text(t))
			}
		}
	}()

	return v
}

func (g *vertexAIModel) Name() string {
	return g.model
}

func (g *vertexAIModel) Close() error {
	return nil
}

var defaultVertexAILLMConfig = &llm.Config{
	Temperature:     llm.Ptr(float32(0.4)),
	MaxOutputTokens: llm.Ptr(4000),
}

type vertexAIModel struct {
	client *genai.Client
	config *llm.Config
	model  string
}

var _ provider.LLMClient = (*vertexAIClient)(nil)

type vertexAIClient struct {
	genaiClient      *genai.Client
	predictionClient *aiplatform.PredictionClient

	location  string
	projectID string
}

func (g *vertexAIClient) Close() error {
	var errs []error
	if g.genaiClient != nil {
		errs = append(errs, g.genaiClient.Close())
	}
	if g.predictionClient != nil {
		errs = append(errs, g.predictionClient.Close())
	}
	return errors.Join(errs...)
}

// NewModel builds a Gemini model, or, for names of the form
// "endpoints/<id>", a model served from a deployed prediction endpoint.
func (g *vertexAIClient) NewModel(model string, config *llm.Config) (llm.Model, error) {
	if config == nil {
		config = defaultVertexAILLMConfig
	}

	if endpoint, ok := g.endpointName(model); ok {
		return &endpointModel{
			client:   g.predictionClient,
			config:   config,
			endpoint: endpoint,
			model:    model,
		}, nil
	}

	return &vertexAIModel{
		client: g.genaiClient,
		config: config,
		model:  model,
	}, nil
}

var _ provider.LLMProvider = Provider

type VertexAIProvider struct {
}

var (
	ErrLocationRequired  error = errors.New("location is required")
	ErrProjectIDRequired error = errors.New("project ID is required")
)

func (VertexAIProvider) NewClient(ctx context.Context, configs ...pconf.Config) (provider.LLMClient, error) {
	cfg, err := pconf.Resolve(configs...)
	if err != nil {
		return nil, err
	}

	if cfg.ProjectID == "" {
		return nil, ErrProjectIDRequired
	}
	if cfg.Location == "" {
		return nil, ErrLocationRequired
	}

	genaiClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, cfg.GoogleClientOptions...)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s-aiplatform.googleapis.com:443", cfg.Location)
	}
	predictionOptions := append([]option.ClientOption{option.WithEndpoint(endpoint)}, cfg.GoogleClientOptions...)

	predictionClient, err := aiplatform.NewPredictionClient(ctx, predictionOptions...)
	if err != nil {
		genaiClient.Close()
		return nil, err
	}

	return &vertexAIClient{
		genaiClient:      genaiClient,
		predictionClient: predictionClient,
		location:         cfg.Location,
		projectID:        cfg.ProjectID,
	}, nil
}

const ProviderName = "vertexai"

var Provider VertexAIProvider

func init() {
	structllm.RegisterLLMProvider(ProviderName, Provider)
}
