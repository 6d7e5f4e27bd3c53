package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/lemon-mint/structllm/llm"
)

type messageRole string

const (
	roleAssistant messageRole = "assistant"
	roleUser      messageRole = "user"
)

type textBlock struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

type message struct {
	Role    messageRole `json:"role"`
	Content []textBlock `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`

	System        string   `json:"system,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`

	Stream bool `json:"stream"`
}

var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:    16,
		IdleConnTimeout: 30 * time.Second,
	},
}

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
)

type apiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	parsers    fastjson.ParserPool
}

func newAPIClient(baseURL, apiKey string, httpClient *http.Client) *apiClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = defaultHTTPClient
	}
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

// createMessages posts req and returns the open event stream.
func (c *apiClient) createMessages(ctx context.Context, req *messagesRequest) (io.ReadCloser, error) {
	u, err := url.JoinPath(c.baseURL, "messages")
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/event-stream")
	r.Header.Set("X-API-Key", c.apiKey)
	r.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.decodeError(resp)
	}
	return resp.Body, nil
}

// APIError is an error body returned by the messages endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic: %s (HTTP %d): %s", e.Type, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if err := errorByType(e.Type); err != llm.ErrUnknown {
		return err
	}
	return llm.ErrorByStatus(e.StatusCode)
}

func (c *apiClient) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}

	p := c.parsers.Get()
	defer c.parsers.Put(p)
	if v, err := p.ParseBytes(body); err == nil {
		apiErr.Type = string(v.GetStringBytes("error", "type"))
		apiErr.Message = string(v.GetStringBytes("error", "message"))
	}
	return apiErr
}

var errStreamError = errors.New("anthropic: stream error")

func errorByType(t string) error {
	switch t {
	case "invalid_request_error":
		return llm.ErrInvalidRequest
	case "authentication_error":
		return llm.ErrAuthentication
	case "permission_error":
		return llm.ErrPermission
	case "not_found_error":
		return llm.ErrNotFound
	case "rate_limit_error":
		return llm.ErrRateLimit
	case "overloaded_error":
		return llm.ErrOverloaded
	case "api_error":
		return llm.ErrInternalServer
	}
	return llm.ErrUnknown
}
