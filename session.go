package structllm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lemon-mint/structllm/coerce"
	"github.com/lemon-mint/structllm/directory"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/prompt"
	"github.com/lemon-mint/structllm/provider"
	"github.com/lemon-mint/structllm/retrieval"
	"github.com/lemon-mint/structllm/schema"
)

var (
	ErrNoSchema    = errors.New("no schema has been built")
	ErrNoModel     = errors.New("no model selected")
	ErrNoClient    = errors.New("no llm client configured")
	ErrNoRetriever = errors.New("retrieval requested but no retriever configured")
	ErrNoDirectory = errors.New("no model directory configured")
	ErrEmptyQuery  = errors.New("query is empty")
	ErrUnknownKey  = errors.New("model key not in directory")
)

// ChatResult is the outcome of one chat turn. Raw is always the model's
// unmodified reply; Object is set only when it parsed.
type ChatResult struct {
	Object map[string]any
	Raw    string

	Prompt        string
	Contexts      []string
	FailedFetches int

	Usage        *llm.UsageData
	FinishReason llm.FinishReason
}

// Session holds the state one user works with across turns: the current
// schema, the selected model and the cached model directory.
type Session struct {
	id     string
	logger *zap.Logger

	client    provider.LLMClient
	retriever *retrieval.Retriever
	directory *directory.Directory
	token     string
	coercer   *coerce.Coercer
	template  *prompt.Template
	strict    bool

	schemaOpts []schema.Option

	mu     sync.RWMutex
	model  llm.Model
	schema *schema.Descriptor
	format string
}

type SessionOption func(*Session)

// WithLLMClient sets the client SelectModel builds models with.
func WithLLMClient(c provider.LLMClient) SessionOption {
	return func(s *Session) {
		s.client = c
	}
}

// WithModel selects a ready model. The session closes it on Close.
func WithModel(m llm.Model) SessionOption {
	return func(s *Session) {
		s.model = m
	}
}

func WithRetriever(r *retrieval.Retriever) SessionOption {
	return func(s *Session) {
		s.retriever = r
	}
}

func WithDirectory(d *directory.Directory) SessionOption {
	return func(s *Session) {
		s.directory = d
	}
}

// WithToken sets the token used for model listing.
func WithToken(token string) SessionOption {
	return func(s *Session) {
		s.token = token
	}
}

func WithCoercer(c *coerce.Coercer) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.coercer = c
		}
	}
}

func WithTemplate(t *prompt.Template) SessionOption {
	return func(s *Session) {
		if t != nil {
			s.template = t
		}
	}
}

// WithStrictValidation checks every reply against the current schema.
func WithStrictValidation() SessionOption {
	return func(s *Session) {
		s.strict = true
	}
}

func WithSchemaOptions(opts ...schema.Option) SessionOption {
	return func(s *Session) {
		s.schemaOpts = append(s.schemaOpts, opts...)
	}
}

func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.NewString(),
		logger:   zap.NewNop(),
		template: prompt.Default,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(zap.String("session", s.id))
	if s.coercer == nil {
		s.coercer = coerce.New(coerce.WithLogger(s.logger))
	}
	return s
}

func (s *Session) ID() string { return s.id }

// BuildSchema replaces the session schema. When only some fields are
// invalid the schema is still replaced with the valid ones and the
// returned error lists the rest.
func (s *Session) BuildSchema(fields []schema.FieldSpec) (*schema.Descriptor, error) {
	opts := append([]schema.Option{schema.WithLogger(s.logger)}, s.schemaOpts...)
	desc, err := schema.Build(fields, opts...)
	if desc == nil {
		return nil, err
	}

	s.mu.Lock()
	s.schema = desc
	s.format = prompt.FormatInstructions(desc.String())
	s.mu.Unlock()

	s.logger.Info("schema built",
		zap.Strings("fields", desc.Required()),
		zap.Bool("partial", err != nil))
	return desc, err
}

func (s *Session) Schema() *schema.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

// Models lists the models reachable with the session token.
func (s *Session) Models(ctx context.Context) (*directory.Listing, error) {
	if s.directory == nil {
		return nil, ErrNoDirectory
	}
	return s.directory.List(ctx, s.token)
}

// SelectModel builds the model for key and makes it current. With a
// directory, key must be one of its keys; without one, key is handed to the
// client as a model name.
func (s *Session) SelectModel(ctx context.Context, key string, config *llm.Config) error {
	if s.client == nil {
		return ErrNoClient
	}

	name := key
	if s.directory != nil {
		listing, err := s.Models(ctx)
		if err != nil {
			return err
		}
		u, ok := listing.Lookup(key)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		name = u
	}

	m, err := s.client.NewModel(name, config)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.model
	s.model = m
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn("closing previous model failed", zap.Error(err))
		}
	}

	s.logger.Info("model selected", zap.String("key", key), zap.String("model", m.Name()))
	return nil
}

// Chat runs one turn: optional retrieval, prompt composition, one model
// call, and parsing. A reply that is not valid JSON yields both a result
// carrying the raw text and an error matching coerce.ErrParseFailure.
func (s *Session) Chat(ctx context.Context, query string, rag bool) (*ChatResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.RLock()
	desc, format, model := s.schema, s.format, s.model
	s.mu.RUnlock()

	if desc == nil {
		return nil, ErrNoSchema
	}
	if model == nil {
		return nil, ErrNoModel
	}

	res := &ChatResult{}

	var contexts []string
	if rag {
		if s.retriever == nil {
			return nil, ErrNoRetriever
		}
		r, err := s.retriever.Retrieve(ctx, query)
		if err != nil {
			return nil, err
		}
		// non-nil even when nothing was found, so the grounded layout is used
		contexts = append([]string{}, r.Documents...)
		res.FailedFetches = len(r.Failures)
	}
	res.Contexts = contexts

	p, err := s.template.Compose(query, format, contexts)
	if err != nil {
		return nil, err
	}
	res.Prompt = p

	var strict *schema.Descriptor
	if s.strict {
		strict = desc
	}

	out, err := s.coercer.GenerateWith(ctx, model, p, strict)
	if out != nil {
		res.Object = out.Object
		res.Raw = out.Raw
		res.Usage = out.Usage
		res.FinishReason = out.FinishReason
	}
	if err != nil {
		if out == nil {
			return nil, err
		}
		return res, err
	}

	s.logger.Debug("chat turn completed",
		zap.Bool("rag", rag),
		zap.Int("contexts", len(contexts)),
		zap.Int("failed_fetches", res.FailedFetches))
	return res, nil
}

// Close releases the model and the client.
func (s *Session) Close() error {
	s.mu.Lock()
	m := s.model
	s.model = nil
	s.mu.Unlock()

	var errs []error
	if m != nil {
		errs = append(errs, m.Close())
	}
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	return errors.Join(errs...)
}
