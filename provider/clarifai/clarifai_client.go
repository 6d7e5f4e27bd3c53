package clarifai

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/directory"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider"
	"github.com/lemon-mint/structllm/retrieval"
)

var (
	_ provider.LLMClient = (*ClarifaiClient)(nil)
	_ retrieval.Searcher = (*ClarifaiClient)(nil)
	_ directory.Lister   = (*ClarifaiClient)(nil)
)

// ClarifaiClient talks to the Clarifai v2 REST API. Besides building
// models it searches an app's text inputs and lists community models.
type ClarifaiClient struct {
	api *apiClient

	userID string
	appID  string

	logger *zap.Logger
}

var defaultClarifaiConfig = &llm.Config{
	MaxOutputTokens: llm.Ptr(4000),
}

// NewModel accepts a model page URL
// (https://clarifai.com/{user}/{app}/models/{model}), a "user/app/model"
// triple, or a bare model ID in the client's own app.
func (c *ClarifaiClient) NewModel(model string, config *llm.Config) (llm.Model, error) {
	if strings.TrimSpace(model) == "" {
		return nil, ErrModelNameRequired
	}
	if config == nil {
		config = defaultClarifaiConfig
	}

	ref, err := parseModelRef(model, c.userID, c.appID)
	if err != nil {
		return nil, err
	}

	return &clarifaiModel{
		client: c,
		ref:    ref,
		name:   model,
		config: config,
	}, nil
}

func (c *ClarifaiClient) Close() error {
	return nil
}

type modelRef struct {
	UserID    string
	AppID     string
	ModelID   string
	VersionID string
}

func (r modelRef) outputsPath() string {
	p := "/users/" + url.PathEscape(r.UserID) +
		"/apps/" + url.PathEscape(r.AppID) +
		"/models/" + url.PathEscape(r.ModelID)
	if r.VersionID != "" {
		p += "/versions/" + url.PathEscape(r.VersionID)
	}
	return p + "/outputs"
}

func parseModelRef(model, userID, appID string) (modelRef, error) {
	model = strings.TrimSpace(model)

	if strings.HasPrefix(model, "https://") || strings.HasPrefix(model, "http://") {
		u, err := url.Parse(model)
		if err != nil {
			return modelRef{}, ErrInvalidModelURL
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		// {user}/{app}/models/{model}[/versions/{version}]
		if len(parts) < 4 || parts[2] != "models" {
			return modelRef{}, ErrInvalidModelURL
		}
		ref := modelRef{UserID: parts[0], AppID: parts[1], ModelID: parts[3]}
		if len(parts) >= 6 && (parts[4] == "versions" || parts[4] == "model_version") {
			ref.VersionID = parts[5]
		}
		return ref, nil
	}

	if parts := strings.Split(model, "/"); len(parts) == 3 {
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return modelRef{}, ErrInvalidModelURL
		}
		return modelRef{UserID: parts[0], AppID: parts[1], ModelID: parts[2]}, nil
	}

	if strings.Contains(model, "/") {
		return modelRef{}, ErrInvalidModelURL
	}
	if userID == "" || appID == "" {
		return modelRef{}, ErrScopeRequired
	}
	return modelRef{UserID: userID, AppID: appID, ModelID: model}, nil
}

var _ provider.LLMProvider = Provider

type ClarifaiProvider struct {
}

func (ClarifaiProvider) NewClient(ctx context.Context, configs ...pconf.Config) (provider.LLMClient, error) {
	c, err := NewClient(ctx, configs...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewClient is NewClient on Provider with the concrete return type, for
// callers that also need search or model listing.
func NewClient(_ context.Context, configs ...pconf.Config) (*ClarifaiClient, error) {
	cfg, err := pconf.Resolve(configs...)
	if err != nil {
		return nil, err
	}

	return &ClarifaiClient{
		api:    newAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient),
		userID: cfg.UserID,
		appID:  cfg.AppID,
		logger: cfg.Logger.Named(ProviderName),
	}, nil
}

const ProviderName = "clarifai"

var Provider ClarifaiProvider

func init() {
	structllm.RegisterLLMProvider(ProviderName, Provider)
}
