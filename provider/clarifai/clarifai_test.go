package clarifai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/retrieval"
)

func newTestClient(t *testing.T, h http.HandlerFunc, configs ...pconf.Config) *ClarifaiClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	configs = append([]pconf.Config{
		pconf.WithAPIKey("test-pat"),
		pconf.WithBaseURL(srv.URL + "/v2"),
		pconf.WithHTTPClient(srv.Client()),
	}, configs...)

	c, err := NewClient(context.Background(), configs...)
	require.NoError(t, err)
	return c
}

func TestParseModelRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  modelRef
		err   error
	}{
		{"https://clarifai.com/openai/chat-completion/models/GPT-4", modelRef{UserID: "openai", AppID: "chat-completion", ModelID: "GPT-4"}, nil},
		{"https://clarifai.com/meta/Llama-2/models/llama2-70b-chat/versions/abc", modelRef{UserID: "meta", AppID: "Llama-2", ModelID: "llama2-70b-chat", VersionID: "abc"}, nil},
		{"meta/Llama-2/llama2-70b-chat", modelRef{UserID: "meta", AppID: "Llama-2", ModelID: "llama2-70b-chat"}, nil},
		{"my-model", modelRef{UserID: "me", AppID: "app", ModelID: "my-model"}, nil},
		{"https://clarifai.com/meta/Llama-2", modelRef{}, ErrInvalidModelURL},
		{"a/b", modelRef{}, ErrInvalidModelURL},
		{"a//c", modelRef{}, ErrInvalidModelURL},
	}

	for _, tt := range tests {
		got, err := parseModelRef(tt.model, "me", "app")
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.model)
			continue
		}
		require.NoError(t, err, tt.model)
		assert.Equal(t, tt.want, got, tt.model)
	}

	_, err := parseModelRef("my-model", "", "")
	assert.ErrorIs(t, err, ErrScopeRequired)
}

func TestPredict(t *testing.T) {
	t.Parallel()

	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/users/openai/apps/chat-completion/models/GPT-4/outputs", r.URL.Path)
		assert.Equal(t, "Key test-pat", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		io.WriteString(w, `{
			"status": {"code": 10000, "description": "Ok"},
			"outputs": [{
				"status": {"code": 10000},
				"data": {"text": {"raw": "{\"response\": \"ok\"}"}}
			}]
		}`)
	})

	model, err := c.NewModel("https://clarifai.com/openai/chat-completion/models/GPT-4", nil)
	require.NoError(t, err)
	defer model.Close()

	out := model.GenerateStream(context.Background(), nil, llm.TextContent(llm.RoleUser, "say ok"))
	var streamed string
	for seg := range out.Stream {
		streamed += string(seg.(llm.Text))
	}

	require.NoError(t, out.Err)
	assert.Equal(t, `{"response": "ok"}`, streamed)
	assert.Equal(t, `{"response": "ok"}`, out.Text())
	assert.Equal(t, llm.FinishReasonStop, out.FinishReason)

	inputs := body["inputs"].([]any)
	assert.Equal(t, "say ok", inputs[0].(map[string]any)["data"].(map[string]any)["text"].(map[string]any)["raw"])
	params := body["model"].(map[string]any)["model_version"].(map[string]any)["output_info"].(map[string]any)["params"].(map[string]any)
	assert.Equal(t, float64(4000), params["max_tokens"])
}

func TestPredict_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		err    error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"status": {"code": 11102, "description": "Invalid API key"}}`, llm.ErrAuthentication},
		{"rate limited", http.StatusTooManyRequests, `not json`, llm.ErrRateLimit},
		{"api status", http.StatusOK, `{"status": {"code": 21200, "description": "Model does not exist"}}`, llm.ErrInvalidResponse},
		{"no outputs", http.StatusOK, `{"status": {"code": 10000}, "outputs": []}`, llm.ErrNoResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			model, err := c.NewModel("u/a/m", &llm.Config{MaxOutputTokens: llm.Ptr(10)})
			require.NoError(t, err)

			out := model.GenerateStream(context.Background(), &llm.ChatContext{}, llm.TextContent(llm.RoleUser, "hi"))
			for range out.Stream {
			}
			assert.ErrorIs(t, out.Err, tt.err)
			assert.Equal(t, llm.FinishReasonError, out.FinishReason)
		})
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	var body searchRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/users/me/apps/docs/annotations/searches", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		io.WriteString(w, `{
			"status": {"code": 10000},
			"hits": [
				{"score": 0.92, "input": {"id": "in1", "data": {"text": {"url": "https://data.clarifai.com/in1.txt"}}}},
				{"score": 0.81, "input": {"id": "in2", "data": {"text": {"url": "https://data.clarifai.com/in2.txt"}}}}
			]
		}`)
	}, pconf.WithUserID("me"), pconf.WithAppID("docs"))

	hits, err := c.Search(context.Background(), "refund policy", retrieval.SearchOptions{
		TopK:       5,
		InputTypes: []string{retrieval.InputTypeText},
	})
	require.NoError(t, err)

	assert.Equal(t, []retrieval.Hit{
		{ID: "in1", URL: "https://data.clarifai.com/in1.txt", Score: 0.92},
		{ID: "in2", URL: "https://data.clarifai.com/in2.txt", Score: 0.81},
	}, hits)

	require.Len(t, body.Searches, 1)
	assert.Equal(t, "refund policy", body.Searches[0].Query.Ranks[0].Annotation.Data.Text.Raw)
	require.Len(t, body.Searches[0].Query.Filters, 1)
	assert.NotNil(t, body.Searches[0].Query.Filters[0].Input.Data.Text)
	assert.Equal(t, pagination{Page: 1, PerPage: 5}, body.Pagination)
}

func TestSearch_ScopeRequired(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	_, err := c.Search(context.Background(), "q", retrieval.SearchOptions{})
	assert.ErrorIs(t, err, ErrScopeRequired)
}

func TestListModels(t *testing.T) {
	t.Parallel()

	const total = listPageSize + 2
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/models", r.URL.Path)
		assert.Equal(t, "LLM", r.URL.Query().Get("query"))
		assert.Equal(t, "Key session-pat", r.Header.Get("Authorization"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		start := (page - 1) * listPageSize
		end := min(start+listPageSize, total)

		models := []map[string]string{}
		for i := start; i < end; i++ {
			models = append(models, map[string]string{
				"id":      fmt.Sprintf("model_%d", i),
				"user_id": "owner",
				"app_id":  "app",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{"code": 10000},
			"models": models,
		})
	})

	models, err := c.ListModels(context.Background(), "session-pat", "LLM")
	require.NoError(t, err)

	require.Len(t, models, total)
	assert.Equal(t, "model_0", models[0].ID)
	assert.Equal(t, "owner", models[0].UserID)
	assert.Equal(t, "app", models[0].AppID)
	assert.Equal(t, fmt.Sprintf("model_%d", total-1), models[total-1].ID)
}

func TestAPIKeyRequired(t *testing.T) {
	t.Parallel()

	c, err := NewClient(context.Background())
	require.NoError(t, err)

	_, err = c.ListModels(context.Background(), "", "LLM")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}
