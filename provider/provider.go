package provider

import (
	"context"

	"github.com/lemon-mint/structllm/llm"
	"github.com/lemon-mint/structllm/pconf"
)

type LLMClient interface {
	// NewModel binds one model to config. A nil config selects the
	// backend's defaults.
	NewModel(model string, config *llm.Config) (llm.Model, error)
	Close() error
}

type LLMProvider interface {
	NewClient(ctx context.Context, configs ...pconf.Config) (LLMClient, error)
}
