package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// mockCoreLLM is a configurable CoreLLM used by the middleware tests.
type mockCoreLLM struct {
	mu sync.Mutex

	response      string
	tokensIn      int
	tokensOut     int
	err           error
	model         string
	responseDelay time.Duration

	callCount      int
	lastPrompt     string
	lastOpts       map[string]any
	lastContext    context.Context
	callTimestamps []time.Time
}

func newMockCoreLLM() *mockCoreLLM {
	return &mockCoreLLM{
		response:  "test response",
		tokensIn:  10,
		tokensOut: 20,
		model:     "test-model",
	}
}

func (m *mockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.callCount++
	m.lastPrompt = prompt
	m.lastOpts = opts
	m.lastContext = ctx
	m.callTimestamps = append(m.callTimestamps, time.Now())
	delay, resp, in, out, err := m.responseDelay, m.response, m.tokensIn, m.tokensOut, m.err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	if err != nil {
		return "", 0, 0, err
	}
	return resp, in, out, nil
}

func (m *mockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *mockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

func (m *mockCoreLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *mockCoreLLM) timestamps() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.callTimestamps...)
}

var errSimulated = errors.New("simulated failure")
