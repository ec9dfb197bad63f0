package llm

import (
	"context"
)

// Provider abstracts one chat-completion backend. Adapters do a single
// outbound call and classify failures; retry belongs to the Fabric.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Embed(ctx context.Context, model, input string) ([]float32, error)
	Name() string
}

// CompletionRequest is the tuple an adapter sends to its endpoint.
type CompletionRequest struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Prompt       string  `json:"prompt"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// ProviderFactory builds a provider bound to one API key. The fabric calls
// it per request so a per-user key never leaks into shared state.
type ProviderFactory func(name, apiKey string) (Provider, error)
