package aistudio

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/internal/llmutils"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider"
)

var _ llm.Model = (*generativeLanguageModel)(nil)

var ErrAPIKeyRequired = errors.New("api key is required")

func convertContentGenerativeLanguage(s *llm.Content) *genai.Content {
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

func convertContextGenerativeLanguage(c *llm.ChatContext) []*genai.Content {
	contents := make([]*genai.Content, len(c.Contents))
	for i := range c.Contents {
		contents[i] = convertContentGenerativeLanguage(c.Contents[i])
	}
	return contents
}

func convertGenerativeLanguageFinishReason(stop_reason genai.FinishReason) llm.FinishReason {
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

func (g *generativeLanguageModel) GenerateStream(ctx context.Context, chat *llm.ChatContext, input *llm.Content) *llm.StreamContent {
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
	session.History = convertContextGenerativeLanguage(chat)

	iter := session.SendMessageStream(ctx, convertContentGenerativeLanguage(input).Parts...)

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
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				v.Err = err
				v.FinishReason = llm.FinishReasonError
				return
			}

			if len(resp.Candidates) == 0 {
				v.FinishReason = llm.FinishReasonUnknown
				if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason == genai.BlockReasonSafety {
					v.FinishReason = llm.FinishReasonSafety
				}
				v.Err = llm.ErrNoResponse
				return
			}

			cand := resp.Candidates[0]
			if cand.FinishReason != genai.FinishReasonUnspecified {
				v.FinishReason = convertGenerativeLanguageFinishReason(cand.FinishReason)
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

func (g *generativeLanguageModel) Name() string {
	return g.model
}

func (g *generativeLanguageModel) Close() error {
	return nil
}

var defaultGenerativeLanguageConfig = &llm.Config{
	MaxOutputTokens: llm.Ptr(4000),
}

type generativeLanguageModel struct {
	client *genai.Client
	config *llm.Config
	model  string
}

var _ provider.LLMClient = (*aiStudioClient)(nil)

type aiStudioClient struct {
	client *genai.Client
}

func (g *aiStudioClient) Close() error {
	return g.client.Close()
}

func (g *aiStudioClient) NewModel(model string, config *llm.Config) (llm.Model, error) {
	if config == nil {
		config = defaultGenerativeLanguageConfig
	}

	return &generativeLanguageModel{
		client: g.client,
		config: config,
		model:  model,
	}, nil
}

var _ provider.LLMProvider = Provider

type AIStudioProvider struct {
}

func (AIStudioProvider) NewClient(ctx context.Context, configs ...pconf.Config) (provider.LLMClient, error) {
	cfg, err := pconf.Resolve(configs...)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.GoogleClientOptions...)
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &aiStudioClient{client: client}, nil
}

const ProviderName = "aistudio"

var Provider AIStudioProvider

func init() {
	structllm.RegisterLLMProvider(ProviderName, Provider)
}
