// Package structllm turns a runtime field list into a JSON schema, asks a
// language model for an answer shaped like it, and parses the reply.
package structllm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lemon-mint/structllm/pconf"
	"github.com/lemon-mint/structllm/provider"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

var (
	llmProvidersMu sync.RWMutex
	llmProviders   = make(map[string]provider.LLMProvider)
)

// LLMProviders returns the names of the registered llm providers.
func LLMProviders() []string {
	llmProvidersMu.RLock()
	defer llmProvidersMu.RUnlock()
	list := make([]string, 0, len(llmProviders))
	for name := range llmProviders {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// RegisterLLMProvider registers a llm provider. Registering a name twice
// keeps the first provider.
func RegisterLLMProvider(name string, p provider.LLMProvider) {
	llmProvidersMu.Lock()
	defer llmProvidersMu.Unlock()
	if _, ok := llmProviders[name]; ok {
		return
	}
	llmProviders[name] = p
}

// NewLLMClient creates a client from the provider registered as name.
func NewLLMClient(ctx context.Context, name string, configs ...pconf.Config) (provider.LLMClient, error) {
	llmProvidersMu.RLock()
	p, ok := llmProviders[name]
	llmProvidersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p.NewClient(ctx, configs...)
}
