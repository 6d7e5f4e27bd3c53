package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider/openai"
)

func chunk(content, finish string) string {
	choice := map[string]any{
		"index": 0,
		"delta": map[string]any{"content": content},
	}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o",
		"choices": []any{choice},
	})
	return "data: " + string(b) + "\n\n"
}

func TestOpenAIGenerate(t *testing.T) {
	t.Parallel()

	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, chunk(`{"response":`, ""))
		io.WriteString(w, chunk(` "ok"}`, ""))
		io.WriteString(w, chunk("", "stop"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	client, err := structllm.NewLLMClient(context.Background(), openai.ProviderName,
		pconf.WithAPIKey("sk-test"),
		pconf.WithBaseURL(srv.URL+"/v1"),
	)
	require.NoError(t, err)
	defer client.Close()

	model, err := client.NewModel("gpt-4o", nil)
	require.NoError(t, err)
	defer model.Close()

	output := model.GenerateStream(context.Background(), &llm.ChatContext{
		SystemInstruction: "answer in json",
	}, llm.TextContent(llm.RoleUser, "Hello!"))

	var streamed string
	for segment := range output.Stream {
		streamed += fmt.Sprint(segment)
	}

	require.NoError(t, output.Err)
	assert.Equal(t, `{"response": "ok"}`, streamed)
	assert.Equal(t, `{"response": "ok"}`, output.Text())
	assert.Equal(t, llm.FinishReasonStop, output.FinishReason)

	assert.Equal(t, "gpt-4o", req["model"])
	assert.Equal(t, float64(4000), req["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "Hello!", msgs[1].(map[string]any)["content"])
}

func TestOpenAIGenerate_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`)
	}))
	t.Cleanup(srv.Close)

	client, err := openai.Provider.NewClient(context.Background(),
		pconf.WithAPIKey("sk-bad"),
		pconf.WithBaseURL(srv.URL+"/v1"),
	)
	require.NoError(t, err)

	model, err := client.NewModel("gpt-4o", &llm.Config{MaxOutputTokens: llm.Ptr(16)})
	require.NoError(t, err)

	output := model.GenerateStream(context.Background(), nil, llm.TextContent(llm.RoleUser, "Hello!"))
	for range output.Stream {
	}
	assert.ErrorIs(t, output.Err, llm.ErrAuthentication)
}

func TestOpenAIAPIKeyRequired(t *testing.T) {
	t.Parallel()

	_, err := openai.Provider.NewClient(context.Background())
	assert.ErrorIs(t, err, openai.ErrAPIKeyRequired)
}
