package clarifai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

const clarifaiBaseURL = "https://api.clarifai.com/v2"

const maxResponseBytes = 16 << 20

var clarifaiHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:    16,
		IdleConnTimeout: 30 * time.Second,
	},
}

type apiClient struct {
	baseURL     string
	authHandler func(r *http.Request, token string) error

	httpClient *http.Client
	parsers    fastjson.ParserPool
}

func newAPIClient(baseURL string, token string, httpClient *http.Client) *apiClient {
	if baseURL == "" {
		baseURL = clarifaiBaseURL
	}
	if httpClient == nil {
		httpClient = clarifaiHTTPClient
	}
	token = strings.TrimSpace(token)

	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		authHandler: func(r *http.Request, override string) error {
			key := token
			if override = strings.TrimSpace(override); override != "" {
				key = override
			}
			if key == "" {
				return ErrAPIKeyRequired
			}
			r.Header.Set("Authorization", "Key "+key)
			r.Header.Set("Accept", "application/json")
			return nil
		},
		httpClient: httpClient,
	}
}

// do sends one request and hands the decoded response to fn. The value is
// only valid inside fn.
func (c *apiClient) do(ctx context.Context, method string, path string, query url.Values, token string, body any, fn func(v *fastjson.Value) error) error {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	r, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if err := c.authHandler(r, token); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	p := c.parsers.Get()
	defer c.parsers.Put(p)

	v, perr := p.ParseBytes(data)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if perr == nil {
			fillStatus(apiErr, v)
		}
		return apiErr
	}
	if perr != nil {
		return fmt.Errorf("clarifai: decode response: %w", perr)
	}

	if code := v.GetInt("status", "code"); code != 0 && code != statusSuccess {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		fillStatus(apiErr, v)
		return apiErr
	}

	return fn(v)
}

func fillStatus(e *APIError, v *fastjson.Value) {
	e.Code = v.GetInt("status", "code")
	e.Description = string(v.GetStringBytes("status", "description"))
	e.Details = string(v.GetStringBytes("status", "details"))
}

// ================= wire types =================

type apiText struct {
	Raw string `json:"raw,omitempty"`
	URL string `json:"url,omitempty"`
}

type apiData struct {
	Text *apiText `json:"text,omitempty"`
}

type apiInput struct {
	Data apiData `json:"data"`
}

type outputInfo struct {
	Params map[string]any `json:"params,omitempty"`
}

type modelVersion struct {
	OutputInfo outputInfo `json:"output_info"`
}

type modelParams struct {
	ModelVersion modelVersion `json:"model_version"`
}

type predictRequest struct {
	Inputs []apiInput   `json:"inputs"`
	Model  *modelParams `json:"model,omitempty"`
}

type annotation struct {
	Data apiData `json:"data"`
}

type rank struct {
	Annotation annotation `json:"annotation"`
}

type filter struct {
	Input apiInput `json:"input"`
}

type searchQuery struct {
	Ranks   []rank   `json:"ranks"`
	Filters []filter `json:"filters,omitempty"`
}

type search struct {
	Query searchQuery `json:"query"`
}

type pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type searchRequest struct {
	Searches   []search   `json:"searches"`
	Pagination pagination `json:"pagination"`
}
