// Package coerce runs a prompt through a model and turns the reply into a
// JSON object.
package coerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/schema"
)

const DefaultTimeout = 2 * time.Minute

type Result struct {
	Object       map[string]any
	Raw          string
	Usage        *llm.UsageData
	FinishReason llm.FinishReason
}

type Coercer struct {
	timeout time.Duration
	strict  *schema.Descriptor
	logger  *zap.Logger

	parsers fastjson.ParserPool
}

type Option func(*Coercer)

// WithTimeout bounds a single model call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coercer) {
		c.timeout = d
	}
}

// WithStrict validates every parsed object against desc.
func WithStrict(desc *schema.Descriptor) Option {
	return func(c *Coercer) {
		c.strict = desc
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coercer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(opts ...Option) *Coercer {
	c := &Coercer{
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends prompt to model once and parses the reply. A failed call
// returns a *RemoteError. A reply that cannot be coerced returns both the
// Result, with Raw set, and a *ParseError.
func (c *Coercer) Generate(ctx context.Context, model llm.Model, prompt string) (*Result, error) {
	return c.generate(ctx, model, prompt, c.strict)
}

// GenerateWith is Generate validating against desc instead of the
// descriptor given to WithStrict. A nil desc only checks JSON syntax.
func (c *Coercer) GenerateWith(ctx context.Context, model llm.Model, prompt string, desc *schema.Descriptor) (*Result, error) {
	return c.generate(ctx, model, prompt, desc)
}

func (c *Coercer) generate(ctx context.Context, model llm.Model, prompt string, strict *schema.Descriptor) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	stream := model.GenerateStream(ctx, &llm.ChatContext{}, llm.TextContent(llm.RoleUser, prompt))

	var sb strings.Builder
drain:
	for {
		select {
		case seg, ok := <-stream.Stream:
			if !ok {
				break drain
			}
			if t, ok := seg.(llm.Text); ok {
				sb.WriteString(string(t))
			}
		case <-ctx.Done():
			return nil, &RemoteError{Model: model.Name(), Err: ctx.Err()}
		}
	}

	if stream.Err != nil {
		c.logger.Warn("model call failed", zap.String("model", model.Name()), zap.Error(stream.Err))
		return nil, &RemoteError{Model: model.Name(), Err: stream.Err}
	}

	raw := stream.Text()
	if raw == "" {
		raw = sb.String()
	}

	res := &Result{
		Raw:          raw,
		Usage:        stream.UsageData,
		FinishReason: stream.FinishReason,
	}

	c.logger.Debug("model replied",
		zap.String("model", model.Name()),
		zap.Int("bytes", len(raw)),
		zap.String("finish_reason", string(stream.FinishReason)),
		zap.Duration("duration", time.Since(start)))

	obj, err := c.parse(raw, strict)
	if err != nil {
		c.logger.Info("model output rejected", zap.String("model", model.Name()), zap.Error(err))
		return res, err
	}
	res.Object = obj
	return res, nil
}

// Parse decodes raw into an object, applying the strict check when one is
// configured. Errors are *ParseError.
func (c *Coercer) Parse(raw string) (map[string]any, error) {
	return c.parse(raw, c.strict)
}

func (c *Coercer) parse(raw string, strict *schema.Descriptor) (map[string]any, error) {
	body := StripFence(raw)
	if strings.TrimSpace(body) == "" {
		return nil, &ParseError{Raw: raw, Err: ErrEmptyText}
	}

	p := c.parsers.Get()
	v, err := p.Parse(body)
	if err == nil && v.Type() != fastjson.TypeObject {
		err = fmt.Errorf("%w: got %s", ErrNotObject, v.Type())
	}
	c.parsers.Put(p)
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	if strict != nil {
		if err := strict.Validate(obj); err != nil {
			return obj, &ParseError{Raw: raw, Err: err}
		}
	}
	return obj, nil
}

// StripFence removes one markdown code fence around s, with or without a
// language tag. Anything else is returned unchanged.
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || len(t) < 6 || !strings.HasSuffix(t, "```") {
		return s
	}
	t = t[3 : len(t)-3]
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		tag := strings.TrimSpace(t[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			t = t[nl+1:]
		}
	} else {
		t = strings.TrimPrefix(t, "json")
	}
	return strings.TrimSpace(t)
}
