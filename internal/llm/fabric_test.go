package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaxinji/recagent/internal/config"
)

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		DefaultProvider:  "openai",
		Model:            "gpt-4o-mini",
		OpenAIKey:        "default-key",
		MaxAttempts:      5,
		TimeoutSeconds:   1,
		MaxConcurrent:    3,
		TokenSafetyLimit: 6000,
		PromptCharLimit:  8000,
	}
}

func newTestFabric(t *testing.T, mock *MockProvider, opts ...Option) *Fabric {
	t.Helper()
	opts = append(opts, WithProviderFactory(func(name, apiKey string) (Provider, error) {
		return mock, nil
	}))
	f := NewFabric(testConfig(), opts...)
	f.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func TestGenerateBudgetTruncatesBeforeFirstAttempt(t *testing.T) {
	mock := NewMockProvider(MockCall{Text: "ok"})
	f := newTestFabric(t, mock)

	long := strings.Repeat("abcdefgh\n", 12000) // far past both limits
	out, err := f.Generate(context.Background(), GenerateRequest{Prompt: long})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	require.Equal(t, 1, mock.CallCount())
	sent := mock.Requests[0].Prompt
	assert.LessOrEqual(t, len([]rune(sent)), 8000)
	assert.Contains(t, sent, elisionMarker)
}

func TestGenerateTimeoutRetryShrinks(t *testing.T) {
	mock := NewMockProvider(
		MockCall{Err: context.DeadlineExceeded},
		MockCall{Text: "recovered"},
	)
	f := newTestFabric(t, mock)

	prompt := strings.Repeat("content line\n", 500)
	out, err := f.Generate(context.Background(), GenerateRequest{Prompt: prompt, MaxTokens: 2000})

	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	require.Equal(t, 2, mock.CallCount())

	first, second := mock.Requests[0], mock.Requests[1]
	assert.Less(t, len(second.Prompt), len(first.Prompt), "retry must shrink the prompt")
	assert.Equal(t, 1400, second.MaxTokens, "retry must shrink the output budget by 0.7")
}

func TestGenerateTemperaturePassThrough(t *testing.T) {
	mock := NewMockProvider(MockCall{Text: "ok"}, MockCall{Text: "ok"})
	f := newTestFabric(t, mock)

	// An explicit zero reaches the provider untouched.
	_, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hi", Temperature: Temp(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, mock.Requests[0].Temperature)

	// Unset falls back to the default.
	_, err = f.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 0.7, mock.Requests[1].Temperature)
}

func TestGenerateUnauthorizedFailsImmediately(t *testing.T) {
	mock := NewMockProvider(MockCall{Err: errors.New("invalid api key")})
	f := newTestFabric(t, mock)

	_, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hello"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Equal(t, 1, mock.CallCount(), "auth errors must not be retried")
}

func TestGenerateExhaustsRetries(t *testing.T) {
	mock := NewMockProvider(
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Err: errors.New("upstream 503")},
	)
	f := newTestFabric(t, mock)

	_, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hello"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.Equal(t, 5, mock.CallCount())
}

func TestGenerateFinalAttemptSqueezesPrompt(t *testing.T) {
	mock := NewMockProvider(
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Text: "last gasp"},
	)
	f := newTestFabric(t, mock)

	prompt := strings.Repeat("x", 5000)
	out, err := f.Generate(context.Background(), GenerateRequest{Prompt: prompt, MaxTokens: 3000})

	require.NoError(t, err)
	assert.Equal(t, "last gasp", out)

	last := mock.Requests[len(mock.Requests)-1]
	assert.LessOrEqual(t, len([]rune(last.Prompt)), 2000+len([]rune(elisionMarker)))
	assert.LessOrEqual(t, last.MaxTokens, 1000)
}

func TestGenerateConcurrencyCap(t *testing.T) {
	mock := NewMockProvider()
	mock.DefaultText = "done"
	mock.Script = nil
	f := newTestFabric(t, mock)

	// Give every call a little airtime so overlap is observable.
	for i := 0; i < 10; i++ {
		mock.Script = append(mock.Script, MockCall{Text: "done", Delay: 30 * time.Millisecond})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, mock.CallCount())
	assert.LessOrEqual(t, mock.MaxInFlight, 3, "semaphore must cap concurrent provider calls")
}

type stubKeys struct {
	key string
}

func (s stubKeys) Get(_ context.Context, _ uuid.UUID, _ string) (string, error) {
	return s.key, nil
}

func TestGenerateUsesPerUserKey(t *testing.T) {
	mock := NewMockProvider(MockCall{Text: "ok"})
	var captured []string
	f := NewFabric(testConfig(),
		WithKeyResolver(stubKeys{key: "user-key"}),
		WithProviderFactory(func(name, apiKey string) (Provider, error) {
			captured = append(captured, apiKey)
			return mock, nil
		}),
	)
	f.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	userID := uuid.New()
	_, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hi", UserID: userID, Provider: "openai"})
	require.NoError(t, err)

	// Anonymous calls fall back to the configured key.
	mock.Script = append(mock.Script, MockCall{Text: "ok"})
	_, err = f.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)

	require.Len(t, captured, 2)
	assert.Equal(t, "user-key", captured[0])
	assert.Equal(t, "default-key", captured[1])
}

type countingRecorder struct {
	mu   sync.Mutex
	recs []UsageRecord
}

func (c *countingRecorder) RecordUsage(_ context.Context, rec UsageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
}

func TestGenerateRecordsUsageOnSuccessOnly(t *testing.T) {
	rec := &countingRecorder{}
	mock := NewMockProvider(
		MockCall{Err: errors.New("upstream 503")},
		MockCall{Text: "fine"},
	)
	f := newTestFabric(t, mock, WithUsageRecorder(rec))

	_, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, 2, rec.recs[0].Attempts)
	assert.Equal(t, "openai", rec.recs[0].Provider)
	assert.Equal(t, len("fine"), rec.recs[0].OutputChars)
}
