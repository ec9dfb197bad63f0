package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"timeout message", errors.New("request timeout talking to upstream"), KindTimeout},
		{"rate limit message", errors.New("429 Too Many Requests"), KindRateLimited},
		{"quota message", errors.New("you exceeded your current quota"), KindRateLimited},
		{"rate limit phrase", errors.New("rate limit reached for requests"), KindRateLimited},
		{"rate substring alone is not a rate limit", errors.New("failed to moderate content"), KindTransport},
		{"generate verb is not a rate limit", errors.New("could not generate a response"), KindTransport},
		{"unauthorized message", errors.New("Invalid API key provided"), KindUnauthorized},
		{"context length message", errors.New("this model's maximum context length is 8192 tokens"), KindContextTooLong},
		{"server error message", errors.New("upstream returned 503"), KindServerError},
		{"overloaded message", errors.New("Overloaded"), KindServerError},
		{"unknown message", errors.New("connection reset by peer"), KindTransport},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, KindUnauthorized},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, KindRateLimited},
		{"openai 400 context", &openai.APIError{HTTPStatusCode: 400, Message: "context length exceeded"}, KindContextTooLong},
		{"openai 500", &openai.APIError{HTTPStatusCode: 500, Message: "boom"}, KindServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(tt.err)
			require.NotNil(t, ce)
			assert.Equal(t, tt.want, ce.Kind)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassifyPassesThroughCallError(t *testing.T) {
	orig := &CallError{Kind: KindRateLimited, RetryAfter: 2 * time.Second, Err: errors.New("limited")}
	got := Classify(orig)
	assert.Same(t, orig, got)
}

func TestCallErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	ce := &CallError{Kind: KindTransport, Err: inner}
	assert.ErrorIs(t, ce, inner)
}
