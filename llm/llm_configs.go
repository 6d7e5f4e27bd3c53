package llm

type Config struct {
	Temperature     *float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP            *float32 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	TopK            *int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
	StopSequences   []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`

	// JSONMode asks backends that support it to constrain the reply to a JSON object.
	JSONMode bool `json:"json_mode,omitempty" yaml:"json_mode,omitempty"`

	SystemInstruction string `json:"system_instruction,omitempty" yaml:"system_instruction,omitempty"`
}

// MaxTokens returns MaxOutputTokens or def when it is unset or not positive.
func (c *Config) MaxTokens(def int) int {
	if c == nil || c.MaxOutputTokens == nil || *c.MaxOutputTokens <= 0 {
		return def
	}
	return *c.MaxOutputTokens
}

func Ptr[T any](v T) *T {
	return &v
}
