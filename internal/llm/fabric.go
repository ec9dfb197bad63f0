package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/zhaxinji/recagent/internal/config"
	"github.com/zhaxinji/recagent/pkg/tokenizer"
)

// KeyResolver returns the stored API key for (user, provider). An empty
// string means the user has no override and the process-wide key applies.
type KeyResolver interface {
	Get(ctx context.Context, userID uuid.UUID, provider string) (string, error)
}

// UsageRecorder receives one record per successful provider call.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord)
}

type UsageRecord struct {
	UserID      uuid.UUID
	Provider    string
	Model       string
	PromptChars int
	OutputChars int
	LatencyMs   int64
	Attempts    int
	Endpoint    string
}

// GenerateRequest is the fabric's public contract. UserID and Provider are
// optional; when both are set and the user has a stored key for that
// provider, the user's key is used for the whole call.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	// Temperature nil means the fabric default of 0.7; an explicit zero is
	// passed through for deterministic sampling.
	Temperature *float64
	UserID      uuid.UUID
	Provider    string
	Model       string
}

// Temp builds the Temperature field of a GenerateRequest.
func Temp(v float64) *float64 { return &v }

// Fabric is the shared transport under every LLM interaction: prompt-budget
// management, timeout-aware retry with shrinkage, a process-wide concurrency
// cap, and per-user key substitution. The effective key travels down the
// call stack as a parameter; nothing global is mutated.
type Fabric struct {
	cfg     config.LLMConfig
	sem     *semaphore.Weighted
	keys    KeyResolver
	usage   UsageRecorder
	factory ProviderFactory
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Fabric)

func WithKeyResolver(k KeyResolver) Option     { return func(f *Fabric) { f.keys = k } }
func WithUsageRecorder(u UsageRecorder) Option { return func(f *Fabric) { f.usage = u } }

// WithProviderFactory replaces how providers are constructed; tests use it
// to inject mocks.
func WithProviderFactory(pf ProviderFactory) Option {
	return func(f *Fabric) { f.factory = pf }
}

func NewFabric(cfg config.LLMConfig, opts ...Option) *Fabric {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 60
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.TokenSafetyLimit <= 0 {
		cfg.TokenSafetyLimit = 6000
	}
	if cfg.PromptCharLimit <= 0 {
		cfg.PromptCharLimit = 8000
	}

	f := &Fabric{
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		sleep: sleepCtx,
	}
	f.factory = func(name, apiKey string) (Provider, error) {
		switch name {
		case "openai", "":
			return NewOpenAIProvider(apiKey, cfg.OpenAIBaseURL), nil
		case "anthropic":
			return NewAnthropicProvider(apiKey), nil
		default:
			return nil, fmt.Errorf("provider %q not configured", name)
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Generate runs one logical completion with up to MaxAttempts tries.
// Failure kinds pick the recovery: timeouts grow the deadline and shrink the
// prompt, context overflows shrink aggressively, rate limits wait, 5xx and
// transport errors back off exponentially, auth errors surface immediately.
func (f *Fabric) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = f.cfg.DefaultProvider
	}
	model := req.Model
	if model == "" {
		model = f.cfg.Model
	}
	temperature := 0.7
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	provider, err := f.provider(ctx, req.UserID, providerName)
	if err != nil {
		return "", err
	}

	prompt := f.applyBudget(req.Prompt)
	origLen := len([]rune(prompt))
	timeout := time.Duration(f.cfg.TimeoutSeconds) * time.Second
	maxAttempts := f.cfg.MaxAttempts

	var lastErr *CallError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt == maxAttempts && len([]rune(prompt)) > 2000 {
			prompt = keepEnds(prompt, 1500, 500)
			if maxTokens > 1000 {
				maxTokens = 1000
			}
		}

		start := time.Now()
		text, err := f.attempt(ctx, provider, CompletionRequest{
			Model:        model,
			SystemPrompt: req.SystemPrompt,
			Prompt:       prompt,
			MaxTokens:    maxTokens,
			Temperature:  temperature,
		}, timeout)
		if err == nil {
			if f.usage != nil {
				f.usage.RecordUsage(ctx, UsageRecord{
					UserID:      req.UserID,
					Provider:    providerName,
					Model:       model,
					PromptChars: len(prompt),
					OutputChars: len(text),
					LatencyMs:   time.Since(start).Milliseconds(),
					Attempts:    attempt,
					Endpoint:    "chat",
				})
			}
			return text, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("llm call canceled: %w", ctx.Err())
		}

		lastErr = Classify(err)
		slog.Warn("llm attempt failed",
			"provider", providerName,
			"attempt", attempt,
			"kind", string(lastErr.Kind),
			"prompt_chars", len(prompt),
		)

		switch lastErr.Kind {
		case KindUnauthorized:
			return "", fmt.Errorf("llm unauthorized: %w", lastErr)

		case KindTimeout:
			timeout = time.Duration(float64(timeout) * 1.5)
			floor := origLen / 5
			if floor < 1000 {
				floor = 1000
			}
			target := int(float64(origLen) * math.Pow(0.6, float64(attempt)))
			if target < floor {
				target = floor
			}
			if target < len([]rune(prompt)) {
				prompt = keepEnds(prompt, target*7/10, target*3/10)
			}
			maxTokens = shrinkTokens(maxTokens, 0.7)

		case KindContextTooLong:
			target := len([]rune(prompt)) * 3 / 10
			prompt = keepEnds(prompt, target*7/10, target*3/10)
			maxTokens = shrinkTokens(maxTokens, 0.6)

		case KindRateLimited:
			wait := lastErr.RetryAfter + time.Duration(1+rand.Intn(5))*time.Second
			if err := f.sleep(ctx, wait); err != nil {
				return "", err
			}

		default:
			wait := time.Duration(math.Pow(2, float64(attempt)))*time.Second +
				time.Duration(rand.Float64()*2*float64(time.Second))
			if err := f.sleep(ctx, wait); err != nil {
				return "", err
			}
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrCallFailed, maxAttempts, lastErr)
}

// Embed generates one embedding vector through the same key resolution and
// concurrency cap as completions.
func (f *Fabric) Embed(ctx context.Context, userID uuid.UUID, providerName, input string) ([]float32, error) {
	if providerName == "" {
		providerName = f.cfg.DefaultProvider
	}
	provider, err := f.provider(ctx, userID, providerName)
	if err != nil {
		return nil, err
	}

	if runes := []rune(input); len(runes) > f.cfg.PromptCharLimit {
		input = string(runes[:f.cfg.PromptCharLimit])
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.TimeoutSeconds)*time.Second)
	defer cancel()
	return provider.Embed(callCtx, f.cfg.EmbeddingModel, input)
}

func (f *Fabric) provider(ctx context.Context, userID uuid.UUID, name string) (Provider, error) {
	key := f.defaultKey(name)
	if userID != uuid.Nil && f.keys != nil {
		userKey, err := f.keys.Get(ctx, userID, name)
		if err != nil {
			slog.Warn("user key lookup failed, using default key", "provider", name, "error", err)
		} else if userKey != "" {
			key = userKey
		}
	}
	return f.factory(name, key)
}

func (f *Fabric) defaultKey(provider string) string {
	switch provider {
	case "anthropic":
		return f.cfg.AnthropicKey
	default:
		return f.cfg.OpenAIKey
	}
}

// applyBudget truncates the prompt when the token estimate or the raw
// character count exceeds the configured safety limits.
func (f *Fabric) applyBudget(prompt string) string {
	if tokenizer.Estimate(prompt) <= f.cfg.TokenSafetyLimit && len([]rune(prompt)) <= f.cfg.PromptCharLimit {
		return prompt
	}
	return truncateKeepEnds(prompt, f.cfg.PromptCharLimit)
}

// attempt holds a semaphore slot for exactly the duration of one provider
// call so the cap bounds in-flight HTTP requests, not whole retries.
func (f *Fabric) attempt(ctx context.Context, provider Provider, req CompletionRequest, timeout time.Duration) (string, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return provider.Complete(callCtx, req)
}

func shrinkTokens(maxTokens int, factor float64) int {
	n := int(float64(maxTokens) * factor)
	if n < 100 {
		n = 100
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
