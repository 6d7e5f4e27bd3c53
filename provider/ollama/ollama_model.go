package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	ollama "github.com/ollama/ollama/api"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/internal/llmutils"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider"
)

func convertContextOllama(chat *llm.ChatContext, system string) []ollama.Message {
	messages := make([]ollama.Message, 0, len(chat.Contents)+1)

	if system != "" {
		messages = append(messages, ollama.Message{
			Role:    "system",
			Content: system,
		})
	}

	for i := range chat.Contents {
		var m ollama.Message

		switch chat.Contents[i].Role {
		case llm.RoleUser:
			m.Role = "user"
		case llm.RoleModel:
			m.Role = "assistant"
		}

		for j := range chat.Contents[i].Parts {
			if v, ok := chat.Contents[i].Parts[j].(llm.Text); ok {
				m.Content += string(v)
			}
		}

		messages = append(messages, m)
	}

	return messages
}

func (g *ollamaModel) options() map[string]interface{} {
	opts := map[string]interface{}{
		"num_predict": g.config.MaxTokens(2048),
	}
	if g.config.Temperature != nil {
		opts["temperature"] = *g.config.Temperature
	}
	if g.config.TopP != nil {
		opts["top_p"] = *g.config.TopP
	}
	if g.config.TopK != nil {
		opts["top_k"] = *g.config.TopK
	}
	if len(g.config.StopSequences) > 0 {
		opts["stop"] = g.config.StopSequences
	}
	return opts
}

func wrapError(err error) error {
	var se ollama.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", llm.ErrorByStatus(se.StatusCode), err)
	}
	return err
}

func (g *ollamaModel) GenerateStream(ctx context.Context, chat *llm.ChatContext, input *llm.Content) *llm.StreamContent {
	if chat == nil {
		chat = &llm.ChatContext{}
	}

	stream := make(chan llm.Segment, 128)
	v := &llm.StreamContent{
		Content: &llm.Content{},
		Stream:  stream,
	}

	go func() {
		defer close(stream)

		err := g.client.Heartbeat(ctx)
		if err != nil {
			v.Err = err
			v.FinishReason = llm.FinishReasonError
			return
		}

		messages := make([]*llm.Content, len(chat.Contents)+1)
		copy(messages, chat.Contents)
		messages[len(messages)-1] = input

		system := g.config.SystemInstruction
		if chat.SystemInstruction != "" {
			system = strings.TrimSpace(system + "\n\n" + chat.SystemInstruction)
		}

		req := &ollama.ChatRequest{
			Model:    g.model,
			Messages: convertContextOllama(&llm.ChatContext{Contents: messages}, system),
			Stream:   llm.Ptr(true),
			Options:  g.options(),
		}
		if g.config.JSONMode {
			req.Format = "json"
		}

		var sb strings.Builder

		err = g.client.Chat(ctx, req, func(cr ollama.ChatResponse) error {
			if cr.Done {
				v.UsageData = &llm.UsageData{
					InputTokens:  cr.PromptEvalCount,
					OutputTokens: cr.EvalCount,
					TotalTokens:  cr.PromptEvalCount + cr.EvalCount,
				}
			}
			if cr.Message.Content == "" {
				return nil
			}
			if !llmutils.Emit(ctx.Done(), stream, llm.Text(cr.Message.Content)) {
				return ctx.Err()
			}
			sb.WriteString(cr.Message.Content)
			return nil
		})
		if err != nil {
			v.Err = wrapError(err)
			v.FinishReason = llm.FinishReasonError
			return
		}

		v.Content = llm.TextContent(llm.RoleModel, sb.String())
		v.FinishReason = llm.FinishReasonStop
	}()

	return v
}

func (g *ollamaModel) Name() string {
	return g.model
}

func (g *ollamaModel) Close() error {
	return nil
}

var defaultOllamaConfig = &llm.Config{
	Temperature:     llm.Ptr(float32(0.8)),
	MaxOutputTokens: llm.Ptr(4000),
	JSONMode:        true,
}

var _ llm.Model = (*ollamaModel)(nil)

type ollamaModel struct {
	client *ollama.Client
	config *llm.Config
	model  string
}

var _ provider.LLMClient = (*OllamaClient)(nil)

type OllamaClient struct {
	client *ollama.Client
}

func (g *OllamaClient) NewModel(model string, config *llm.Config) (llm.Model, error) {
	if config == nil {
		config = defaultOllamaConfig
	}

	return &ollamaModel{
		client: g.client,
		model:  model,
		config: config,
	}, nil
}

func (g *OllamaClient) Close() error {
	return nil
}

var _ provider.LLMProvider = Provider

type OllamaProvider struct {
}

const defaultPort = "11434"

var ErrInvalidHost = errors.New("ollama: invalid server address")

// serverURL picks the configured base URL as is, otherwise the OLLAMA_HOST
// value, otherwise the local default. OLLAMA_HOST may leave out the scheme
// (http, port 11434) or the port (80 or 443 for an explicit scheme).
func serverURL(configured, env string) (*url.URL, error) {
	if configured != "" {
		return url.Parse(configured)
	}

	env = strings.Trim(strings.TrimSpace(env), `"'`)
	if env == "" {
		return &url.URL{Scheme: "http", Host: net.JoinHostPort("127.0.0.1", defaultPort)}, nil
	}

	port := defaultPort
	if scheme, _, ok := strings.Cut(env, "://"); ok {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	} else {
		env = "http://" + env
	}

	u, err := url.Parse(strings.TrimRight(env, "/"))
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHost, env)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n > 65535 {
			return nil, fmt.Errorf("%w: port %q", ErrInvalidHost, p)
		}
		return u, nil
	}
	u.Host = net.JoinHostPort(u.Hostname(), port)
	return u, nil
}

// NewClient connects to pconf.WithBaseURL when given, otherwise to
// OLLAMA_HOST or the local default.
func (OllamaProvider) NewClient(ctx context.Context, configs ...pconf.Config) (provider.LLMClient, error) {
	cfg, err := pconf.Resolve(configs...)
	if err != nil {
		return nil, err
	}

	base, err := serverURL(cfg.BaseURL, os.Getenv("OLLAMA_HOST"))
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OllamaClient{
		client: ollama.NewClient(base, httpClient),
	}, nil
}

const ProviderName = "ollama"

var Provider OllamaProvider

func init() {
	structllm.RegisterLLMProvider(ProviderName, Provider)
}
