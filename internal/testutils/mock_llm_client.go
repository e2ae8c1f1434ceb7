// Package testutils provides fakes shared by the package tests.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-bestof/internal/ports"
)

// Call records one Complete invocation.
type Call struct {
	// Seq is the 1-based arrival order of the call.
	Seq int
	// Prompt is the prompt passed to Complete.
	Prompt string
	// Options is the option map passed to Complete.
	Options map[string]any
}

// MockLLMClient implements ports.LLMClient with scripted behavior.
// By default it answers by substring pattern; Handler overrides that, and
// Delay lets tests reorder completions. It tracks how many calls ran at
// the same time.
type MockLLMClient struct {
	model string

	mu        sync.Mutex
	responses map[string]string
	calls     []Call

	// Handler, when set, produces the result of every call.
	Handler func(ctx context.Context, call Call) (string, error)
	// Delay, when set, returns how long the call with the given sequence
	// number sleeps before answering.
	Delay func(seq int) time.Duration

	seq         atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched case-insensitively against prompts. The empty
	// pattern is the fallback.
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
}

// NewMockLLMClient creates a MockLLMClient with default responses for
// answer generation and ranking prompts.
func NewMockLLMClient(model string) *MockLLMClient {
	m := &MockLLMClient{
		model:     model,
		responses: make(map[string]string),
	}
	m.AddResponse(MockResponse{
		Pattern:  "different answers",
		Response: "Answer 1 is the most accurate. Answer 2 is a close second.",
	})
	m.AddResponse(MockResponse{
		Pattern:  "",
		Response: "This is a standard response for testing purposes.",
	})
	return m
}

// AddResponse adds or replaces a response pattern.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[strings.ToLower(response.Pattern)] = response.Response
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	seq := int(m.seq.Add(1))
	call := Call{Seq: seq, Prompt: prompt, Options: options}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxInFlight.Load()
		if current <= peak || m.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	if m.Delay != nil {
		if d := m.Delay(seq); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Handler != nil {
		return m.Handler(ctx, call)
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	return m.findMatchingResponse(prompt), nil
}

// EstimateTokens implements ports.LLMClient with a four-characters-per-token
// estimate.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens, nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

// Calls returns a copy of every recorded call in arrival order.
func (m *MockLLMClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns the number of Complete invocations.
func (m *MockLLMClient) CallCount() int { return int(m.seq.Load()) }

// MaxInFlight returns the highest number of calls that ran concurrently.
func (m *MockLLMClient) MaxInFlight() int { return int(m.maxInFlight.Load()) }

func (m *MockLLMClient) findMatchingResponse(prompt string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lower := strings.ToLower(prompt)
	best := ""
	for pattern := range m.responses {
		if pattern != "" && strings.Contains(lower, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best != "" {
		return m.responses[best]
	}
	if fallback, ok := m.responses[""]; ok {
		return fallback
	}
	return "Mock response for testing purposes."
}

var _ ports.LLMClient = (*MockLLMClient)(nil)
