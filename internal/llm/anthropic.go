package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	params.Temperature = anthropic.Float(req.Temperature)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", Classify(fmt.Errorf("anthropic chat: %w", err))
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", &CallError{Kind: KindServerError, Err: fmt.Errorf("anthropic chat: empty content")}
	}
	return out, nil
}

func (p *AnthropicProvider) Embed(ctx context.Context, model, input string) ([]float32, error) {
	return nil, &CallError{Kind: KindTransport, Err: fmt.Errorf("anthropic: embeddings not supported")}
}
