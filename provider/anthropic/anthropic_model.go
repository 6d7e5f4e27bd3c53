package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/internal/llmutils"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/llmtools"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider"
)

var _ llm.Model = (*anthropicModel)(nil)

type anthropicModel struct {
	api    *apiClient
	config *llm.Config
	model  string
	logger *zap.Logger
}

func (g *anthropicModel) Name() string {
	return g.model
}

func (g *anthropicModel) Close() error {
	return nil
}

// jsonPrefill starts the assistant turn so the reply continues a JSON
// object. The messages API has no response format switch.
const jsonPrefill = "{"

var (
	sseEvent = []byte("event: ")
	sseData  = []byte("data: ")
)

func convertContent(c *llm.Content) message {
	role := roleUser
	if c.Role == llm.RoleModel {
		role = roleAssistant
	}
	return message{
		Role:    role,
		Content: []textBlock{{Type: "text", Text: llmtools.TextFromContents(c)}},
	}
}

func (g *anthropicModel) request(chat *llm.ChatContext, input *llm.Content) *messagesRequest {
	msgs := make([]message, 0, len(chat.Contents)+2)
	for _, c := range chat.Contents {
		msgs = append(msgs, convertContent(c))
	}
	msgs = append(msgs, convertContent(input))
	if g.config.JSONMode {
		msgs = append(msgs, message{
			Role:    roleAssistant,
			Content: []textBlock{{Type: "text", Text: jsonPrefill}},
		})
	}

	system := g.config.SystemInstruction
	if chat.SystemInstruction != "" {
		if system != "" {
			system += "\n\n"
		}
		system += chat.SystemInstruction
	}

	return &messagesRequest{
		Model:         g.model,
		Messages:      msgs,
		MaxTokens:     g.config.MaxTokens(defaultMaxTokens),
		System:        system,
		StopSequences: g.config.StopSequences,
		Temperature:   g.config.Temperature,
		TopP:          g.config.TopP,
		TopK:          g.config.TopK,
		Stream:        true,
	}
}

func (g *anthropicModel) GenerateStream(ctx context.Context, chat *llm.ChatContext, input *llm.Content) *llm.StreamContent {
	if chat == nil {
		chat = &llm.ChatContext{}
	}
	if input == nil || len(input.Parts) == 0 {
		return llm.Failed(fmt.Errorf("%w: empty input", llm.ErrInvalidRequest))
	}

	stream := make(chan llm.Segment, 128)
	v := &llm.StreamContent{
		Stream:  stream,
		Content: &llm.Content{Role: llm.RoleModel},
	}
	req := g.request(chat, input)

	go func() {
		defer close(stream)

		body, err := g.api.createMessages(ctx, req)
		if err != nil {
			v.Err = err
			v.FinishReason = llm.FinishReasonError
			return
		}
		defer body.Close()

		var parts []llm.Segment
		emit := func(text string) bool {
			parts = append(parts, llm.Text(text))
			return llmutils.Emit(ctx.Done(), stream, llm.Text(text))
		}

		if g.config.JSONMode && !emit(jsonPrefill) {
			v.Err = ctx.Err()
			return
		}

		var (
			usage      llm.UsageData
			stopReason string
		)

		p := g.api.parsers.Get()
		defer g.api.parsers.Put(p)

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	events:
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 || bytes.HasPrefix(line, sseEvent) {
				continue
			}
			if !bytes.HasPrefix(line, sseData) {
				continue
			}

			ev, err := p.ParseBytes(line[len(sseData):])
			if err != nil {
				v.Err = fmt.Errorf("%w: %w", llm.ErrInvalidResponse, err)
				return
			}

			switch string(ev.GetStringBytes("type")) {
			case "message_start":
				usage.InputTokens += ev.GetInt("message", "usage", "input_tokens")
				usage.OutputTokens += ev.GetInt("message", "usage", "output_tokens")
			case "content_block_start":
				if t := ev.GetStringBytes("content_block", "text"); len(t) > 0 && !emit(string(t)) {
					v.Err = ctx.Err()
					return
				}
			case "content_block_delta":
				if string(ev.GetStringBytes("delta", "type")) != "text_delta" {
					continue
				}
				if t := ev.GetStringBytes("delta", "text"); len(t) > 0 && !emit(string(t)) {
					v.Err = ctx.Err()
					return
				}
			case "message_delta":
				if r := ev.GetStringBytes("delta", "stop_reason"); len(r) > 0 {
					stopReason = string(r)
				}
				usage.OutputTokens += ev.GetInt("usage", "output_tokens")
			case "message_stop":
				break events
			case "error":
				t := string(ev.GetStringBytes("error", "type"))
				v.Err = fmt.Errorf("%w: %w: %s", errStreamError, errorByType(t), ev.GetStringBytes("error", "message"))
				v.FinishReason = llm.FinishReasonError
				return
			}
		}
		if err := sc.Err(); err != nil {
			v.Err = err
			return
		}
		if ctx.Err() != nil {
			v.Err = ctx.Err()
			return
		}

		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		v.UsageData = &usage
		v.Content.Parts = llmutils.MergeTexts(parts)
		v.FinishReason = finishReason(stopReason)

		g.logger.Debug("messages stream finished",
			zap.String("model", g.model),
			zap.String("stop_reason", stopReason),
			zap.Int("output_tokens", usage.OutputTokens))
	}()

	return v
}

func finishReason(stopReason string) llm.FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonMaxTokens
	}
	return llm.FinishReasonUnknown
}

const defaultMaxTokens = 4000

var defaultConfig = &llm.Config{
	MaxOutputTokens: llm.Ptr(defaultMaxTokens),
	JSONMode:        true,
}

var _ provider.LLMClient = (*anthropicClient)(nil)

type anthropicClient struct {
	api    *apiClient
	logger *zap.Logger
}

func (*anthropicClient) Close() error {
	return nil
}

func (g *anthropicClient) NewModel(model string, config *llm.Config) (llm.Model, error) {
	if config == nil {
		config = defaultConfig
	}
	return &anthropicModel{
		api:    g.api,
		model:  model,
		config: config,
		logger: g.logger,
	}, nil
}

var _ provider.LLMProvider = Provider

type AnthropicProvider struct {
}

var ErrAPIKeyRequired = errors.New("anthropic: api key is required")

func (AnthropicProvider) NewClient(ctx context.Context, configs ...pconf.Config) (provider.LLMClient, error) {
	cfg, err := pconf.Resolve(configs...)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	return &anthropicClient{
		api:    newAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient),
		logger: cfg.Logger.Named(ProviderName),
	}, nil
}

const ProviderName = "anthropic"

var Provider AnthropicProvider

func init() {
	structllm.RegisterLLMProvider(ProviderName, Provider)
}
