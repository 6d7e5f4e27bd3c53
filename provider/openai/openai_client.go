package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider"
)

type openAIClient struct {
	client *openai.Client
}

func (*openAIClient) Close() error {
	return nil
}

var (
	ErrAPIKeyRequired error = errors.New("api key is required")
)

type openaiConfig func(*openAIClient) error

func (openaiConfig) Apply(*pconf.GeneralConfig) error {
	return nil
}

func WithAzureConfig(apiKey, baseURL string) pconf.Config {
	return WithOpenAIConfig(openai.DefaultAzureConfig(apiKey, baseURL))
}

func WithOpenAIConfig(config openai.ClientConfig) pconf.Config {
	return WithOpenAIClient(openai.NewClientWithConfig(config))
}

func WithOpenAIClient(client *openai.Client) pconf.Config {
	return openaiConfig(func(c *openAIClient) error {
		c.client = client
		return nil
	})
}

func newClient(configs ...pconf.Config) (*openAIClient, error) {
	var c openAIClient
	for i := range configs {
		if v, ok := configs[i].(openaiConfig); ok {
			if err := v(&c); err != nil {
				return nil, err
			}
		}
	}
	if c.client != nil {
		return &c, nil
	}

	cfg, err := pconf.Resolve(configs...)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	c.client = openai.NewClientWithConfig(oc)
	return &c, nil
}

var _ provider.LLMClient = (*openAIClient)(nil)

var defaultOpenAILLMConfig = &llm.Config{
	MaxOutputTokens: llm.Ptr(4000),
	JSONMode:        true,
}

func (g *openAIClient) NewModel(model string, config *llm.Config) (llm.Model, error) {
	if config == nil {
		config = defaultOpenAILLMConfig
	}

	return &openAIModel{
		client: g.client,
		config: config,
		model:  model,
	}, nil
}

var _ provider.LLMProvider = Provider

// OpenAIProvider serves OpenAI and any server speaking its chat
// completions API.
type OpenAIProvider struct {
}

func (OpenAIProvider) NewClient(ctx context.Context, configs ...pconf.Config) (provider.LLMClient, error) {
	c, err := newClient(configs...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

const ProviderName = "openai"

var Provider OpenAIProvider

func init() {
	structllm.RegisterLLMProvider(ProviderName, Provider)
}
