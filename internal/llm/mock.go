package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

// MockCall scripts one response of the mock provider.
type MockCall struct {
	Text  string
	Err   error
	Delay time.Duration
}

// MockProvider replays a scripted sequence of responses and records every
// request it sees. Past the end of the script it returns DefaultText.
type MockProvider struct {
	mu          sync.Mutex
	Script      []MockCall
	DefaultText string

	Requests    []CompletionRequest
	next        int
	inFlight    int
	MaxInFlight int
}

func NewMockProvider(script ...MockCall) *MockProvider {
	return &MockProvider{Script: script, DefaultText: "{}"}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	idx := m.next
	m.next++
	m.inFlight++
	if m.inFlight > m.MaxInFlight {
		m.MaxInFlight = m.inFlight
	}
	call := MockCall{Text: m.DefaultText}
	if idx < len(m.Script) {
		call = m.Script[idx]
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if call.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(call.Delay):
		}
	}
	if call.Err != nil {
		return "", call.Err
	}
	return call.Text, nil
}

// Embed returns a deterministic unit-length vector derived from the input.
func (m *MockProvider) Embed(_ context.Context, _ string, input string) ([]float32, error) {
	const dim = 1536
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return vec, nil
}

// CallCount reports how many completion requests the mock has served.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
