package vertexai

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
)

func TestVertexAIGenerate(t *testing.T) {
	_ = godotenv.Load("../../.env")
	projectID, location := os.Getenv("PROJECT_ID"), os.Getenv("LOCATION")
	if projectID == "" || location == "" {
		t.Skip("PROJECT_ID and LOCATION are not set")
	}

	client, err := Provider.NewClient(context.Background(),
		pconf.WithProjectID(projectID),
		pconf.WithLocation(location),
	)
	require.NoError(t, err)
	defer client.Close()

	model, err := client.NewModel("gemini-1.5-flash-001", nil)
	require.NoError(t, err)
	defer model.Close()

	output := model.GenerateStream(context.Background(), nil,
		llm.TextContent(llm.RoleUser, `Return the JSON object {"response": "ok"} and nothing else.`))
	for range output.Stream {
	}

	require.NoError(t, output.Err)
	assert.Contains(t, output.Text(), "ok")
}

func TestEndpointName(t *testing.T) {
	t.Parallel()

	c := &vertexAIClient{projectID: "proj", location: "us-central1"}

	name, ok := c.endpointName("endpoints/1234")
	assert.True(t, ok)
	assert.Equal(t, "projects/proj/locations/us-central1/endpoints/1234", name)

	name, ok = c.endpointName("projects/other/locations/europe-west4/endpoints/99")
	assert.True(t, ok)
	assert.Equal(t, "projects/other/locations/europe-west4/endpoints/99", name)

	_, ok = c.endpointName("gemini-1.5-pro")
	assert.False(t, ok)

	m, err := c.NewModel("endpoints/1234", nil)
	require.NoError(t, err)
	assert.IsType(t, &endpointModel{}, m)
	assert.Equal(t, "endpoints/1234", m.Name())
}

func TestPredictionText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   interface{}
		want string
		ok   bool
	}{
		{"string", `{"a": 1}`, `{"a": 1}`, true},
		{"list", []interface{}{"first", "second"}, "first", true},
		{"content", map[string]interface{}{"content": "hi"}, "hi", true},
		{"generated_text", map[string]interface{}{"generated_text": "tgi"}, "tgi", true},
		{"nested", []interface{}{map[string]interface{}{"output": "deep"}}, "deep", true},
		{"number", 3.5, "", false},
		{"unknown struct", map[string]interface{}{"score": 1}, "", false},
	}

	for _, tt := range tests {
		v, err := structpb.NewValue(tt.in)
		require.NoError(t, err, tt.name)

		got, ok := predictionText(v)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestEndpointInstance(t *testing.T) {
	t.Parallel()

	m := &endpointModel{config: &llm.Config{Temperature: llm.Ptr(float32(0.5))}}
	v, err := m.instance("hello")
	require.NoError(t, err)

	got := v.GetStructValue().AsMap()
	assert.Equal(t, "hello", got["prompt"])
	assert.Equal(t, float64(4000), got["max_tokens"])
	assert.Equal(t, 0.5, got["temperature"])
}
