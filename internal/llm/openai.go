package llm

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completion endpoint.
// A custom base URL keeps the core vendor-agnostic.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	oReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	// go-openai omits a zero temperature from the wire request, so an exact
	// zero is sent as the library's documented near-zero stand-in.
	if req.Temperature == 0 {
		oReq.Temperature = math.SmallestNonzeroFloat32
	} else {
		oReq.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		oReq.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, oReq)
	if err != nil {
		return "", Classify(fmt.Errorf("openai chat: %w", err))
	}

	if len(resp.Choices) == 0 {
		return "", &CallError{Kind: KindServerError, Err: fmt.Errorf("openai chat: empty choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, model, input string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{input},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, Classify(fmt.Errorf("openai embedding: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, &CallError{Kind: KindServerError, Err: fmt.Errorf("openai embedding: empty data")}
	}
	return resp.Data[0].Embedding, nil
}
