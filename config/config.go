// Package config loads the settings of the structllm command: defaults,
// then a YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lemon-mint/structllm/coerce"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/retrieval"
	"github.com/lemon-mint/structllm/schema"
)

const (
	EnvClarifaiPAT = "CLARIFAI_PAT"
	EnvProvider    = "STRUCTLLM_PROVIDER"
	EnvModel       = "STRUCTLLM_MODEL"
	EnvAPIKey      = "STRUCTLLM_API_KEY"
	EnvBaseURL     = "STRUCTLLM_BASE_URL"
	EnvUserID      = "STRUCTLLM_USER_ID"
	EnvAppID       = "STRUCTLLM_APP_ID"
	EnvLogLevel    = "STRUCTLLM_LOG_LEVEL"
)

// DefaultProvider names the clarifai provider, which is also the one the
// rag token doubles as an api key for. It must equal clarifai.ProviderName.
const DefaultProvider = "clarifai"

var (
	ErrNoProvider    = errors.New("provider is not set")
	ErrRAGIncomplete = errors.New("rag needs a token, user id and app id")
	ErrInvalidValue  = errors.New("invalid config value")
)

// Duration reads "30s" style strings.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidValue, s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Field struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type RAGConfig struct {
	Token            string   `yaml:"token"`
	BaseURL          string   `yaml:"base_url"`
	UserID           string   `yaml:"user_id"`
	AppID            string   `yaml:"app_id"`
	TopK             int      `yaml:"top_k"`
	Concurrency      int      `yaml:"concurrency"`
	SearchTimeout    Duration `yaml:"search_timeout"`
	FetchTimeout     Duration `yaml:"fetch_timeout"`
	MaxDocumentBytes int64    `yaml:"max_document_bytes"`
	FailFast         bool     `yaml:"fail_fast"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`

	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float32 `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`

	Fields    []Field `yaml:"fields"`
	MaxFields int     `yaml:"max_fields"`
	Strict    bool    `yaml:"strict"`

	RAG RAGConfig `yaml:"rag"`
	Log LogConfig `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Provider:  DefaultProvider,
		MaxTokens: 4000,
		Timeout:   Duration(coerce.DefaultTimeout),
		MaxFields: schema.DefaultMaxFields,
		RAG: RAGConfig{
			TopK:          retrieval.DefaultTopK,
			Concurrency:   retrieval.DefaultConcurrency,
			SearchTimeout: Duration(retrieval.DefaultSearchTimeout),
			FetchTimeout:  Duration(retrieval.DefaultFetchTimeout),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies the environment. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnv(os.LookupEnv)
	return c, nil
}

// LoadEnvFile loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(&c.Provider, EnvProvider)
	set(&c.Model, EnvModel)
	set(&c.APIKey, EnvAPIKey)
	set(&c.BaseURL, EnvBaseURL)
	set(&c.RAG.UserID, EnvUserID)
	set(&c.RAG.AppID, EnvAppID)
	set(&c.Log.Level, EnvLogLevel)
	set(&c.RAG.Token, EnvClarifaiPAT)

	if c.APIKey == "" && c.Provider == DefaultProvider {
		c.APIKey = c.RAG.Token
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Provider == "" {
		errs = append(errs, ErrNoProvider)
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%w: max_tokens %d", ErrInvalidValue, c.MaxTokens))
	}
	if c.MaxFields <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_fields %d", ErrInvalidValue, c.MaxFields))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("%w: rag.top_k %d", ErrInvalidValue, c.RAG.TopK))
	}
	if c.RAG.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: rag.concurrency %d", ErrInvalidValue, c.RAG.Concurrency))
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: log.level %q", ErrInvalidValue, c.Log.Level))
	}
	return errors.Join(errs...)
}

// ValidateRAG reports whether the retrieval settings are complete.
func (c *Config) ValidateRAG() error {
	if c.RAG.Token == "" || c.RAG.UserID == "" || c.RAG.AppID == "" {
		return ErrRAGIncomplete
	}
	return nil
}

func (c *Config) FieldSpecs() []schema.FieldSpec {
	specs := make([]schema.FieldSpec, len(c.Fields))
	for i, f := range c.Fields {
		specs[i] = schema.FieldSpec{Name: f.Name, Type: f.Type}
	}
	return specs
}

// ParseField reads a "name=type" pair as given on the command line.
func ParseField(s string) (Field, error) {
	name, typ, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return Field{}, fmt.Errorf("%w: field %q, want name=type", ErrInvalidValue, s)
	}
	return Field{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)}, nil
}

func (c *Config) LLMConfig() *llm.Config {
	cfg := &llm.Config{
		Temperature: c.Temperature,
		JSONMode:    true,
	}
	if c.MaxTokens > 0 {
		cfg.MaxOutputTokens = llm.Ptr(c.MaxTokens)
	}
	return cfg
}

func (c *Config) ProviderConfigs(logger *zap.Logger) []pconf.Config {
	var configs []pconf.Config
	if c.APIKey != "" {
		configs = append(configs, pconf.WithAPIKey(c.APIKey))
	}
	if c.BaseURL != "" {
		configs = append(configs, pconf.WithBaseURL(c.BaseURL))
	}
	if c.RAG.UserID != "" {
		configs = append(configs, pconf.WithUserID(c.RAG.UserID))
	}
	if c.RAG.AppID != "" {
		configs = append(configs, pconf.WithAppID(c.RAG.AppID))
	}
	if c.ProjectID != "" {
		configs = append(configs, pconf.WithProjectID(c.ProjectID))
	}
	if c.Location != "" {
		configs = append(configs, pconf.WithLocation(c.Location))
	}
	if logger != nil {
		configs = append(configs, pconf.WithLogger(logger))
	}
	return configs
}

// ClarifaiConfigs configures the client used for search and model listing,
// which authenticates with the rag token whatever the llm provider is.
func (c *Config) ClarifaiConfigs(logger *zap.Logger) []pconf.Config {
	configs := []pconf.Config{
		pconf.WithAPIKey(c.RAG.Token),
		pconf.WithUserID(c.RAG.UserID),
		pconf.WithAppID(c.RAG.AppID),
	}
	if c.RAG.BaseURL != "" {
		configs = append(configs, pconf.WithBaseURL(c.RAG.BaseURL))
	}
	if logger != nil {
		configs = append(configs, pconf.WithLogger(logger))
	}
	return configs
}

func (c *Config) RetrieverOptions(logger *zap.Logger) []retrieval.Option {
	opts := []retrieval.Option{
		retrieval.WithTopK(c.RAG.TopK),
		retrieval.WithConcurrency(c.RAG.Concurrency),
		retrieval.WithSearchTimeout(c.RAG.SearchTimeout.Std()),
		retrieval.WithFetchTimeout(c.RAG.FetchTimeout.Std()),
		retrieval.WithLogger(logger),
	}
	if c.RAG.FailFast {
		opts = append(opts, retrieval.WithFailFast())
	}
	return opts
}

func (c *Config) FetcherOptions() []retrieval.FetcherOption {
	if c.RAG.MaxDocumentBytes > 0 {
		return []retrieval.FetcherOption{retrieval.WithMaxDocumentBytes(c.RAG.MaxDocumentBytes)}
	}
	return nil
}

// Logger builds a production logger, or a development one when
// log.development is set.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func (c *Config) String() string {
	redacted := *c
	if redacted.APIKey != "" {
		redacted.APIKey = "REDACTED"
	}
	if redacted.RAG.Token != "" {
		redacted.RAG.Token = "REDACTED"
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "config(" + strconv.Quote(err.Error()) + ")"
	}
	return string(out)
}
