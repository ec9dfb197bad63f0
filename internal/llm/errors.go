package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// Kind is the typed failure category of a provider call.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindUnauthorized   Kind = "unauthorized"
	KindContextTooLong Kind = "context_too_long"
	KindServerError    Kind = "server_error"
	KindTransport      Kind = "transport_error"
)

// ErrCallFailed wraps the last underlying failure once the fabric has
// exhausted its retries.
var ErrCallFailed = errors.New("llm call failed")

// CallError carries the failure kind so the fabric can pick a retry policy.
type CallError struct {
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Classify maps a raw provider error onto a CallError. SDK error types are
// checked first; string matching is the fallback for providers that only
// surface flat messages.
func Classify(err error) *CallError {
	if err == nil {
		return nil
	}

	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &CallError{Kind: KindTimeout, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &CallError{Kind: kindFromStatus(apiErr.HTTPStatusCode, apiErr.Message), Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &CallError{Kind: kindFromStatus(reqErr.HTTPStatusCode, reqErr.Error()), Err: err}
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return &CallError{Kind: kindFromStatus(anthErr.StatusCode, anthErr.Error()), Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return &CallError{Kind: KindTimeout, Err: err}
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"), strings.Contains(msg, "quota"):
		return &CallError{Kind: KindRateLimited, Err: err}
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return &CallError{Kind: KindUnauthorized, Err: err}
	case strings.Contains(msg, "context length"), strings.Contains(msg, "context_length"), strings.Contains(msg, "too long"), strings.Contains(msg, "maximum context"):
		return &CallError{Kind: KindContextTooLong, Err: err}
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "overloaded"), strings.Contains(msg, "unavailable"):
		return &CallError{Kind: KindServerError, Err: err}
	default:
		return &CallError{Kind: KindTransport, Err: err}
	}
}

func kindFromStatus(status int, msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case status == 401 || status == 403:
		return KindUnauthorized
	case status == 408:
		return KindTimeout
	case status == 429:
		return KindRateLimited
	case status == 400 || status == 413:
		if strings.Contains(lower, "context") || strings.Contains(lower, "too long") || strings.Contains(lower, "token") {
			return KindContextTooLong
		}
		return KindTransport
	case status >= 500:
		return KindServerError
	default:
		return KindTransport
	}
}
