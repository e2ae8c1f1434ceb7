package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-bestof/internal/ports"
)

// Metric names emitted by MetricsMiddleware.
const (
	MetricRequestLatency = "llm_latency_seconds"
	MetricRequests       = "llm_requests_total"
	MetricTokens         = "llm_tokens_total"
)

// metricsLLM records latency, outcome and token usage for each request.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	provider  string
}

// MetricsMiddleware records request metrics labelled with provider, model
// and status. A nil collector disables recording.
func MetricsMiddleware(collector ports.MetricsCollector, provider string) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{
			next:      next,
			collector: collector,
			provider:  provider,
		}
	}
}

// DoRequest executes the request while collecting metrics.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    ExtractOptionalString(opts, OptModel, m.next.GetModel(), IsNonEmptyString),
		"status":   requestStatus(err),
	}

	m.collector.RecordHistogram(MetricRequestLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricRequests, 1, labels)

	if err == nil {
		labels["token_type"] = "input"
		m.collector.RecordCounter(MetricTokens, float64(tokensIn), labels)

		labels["token_type"] = "output"
		m.collector.RecordCounter(MetricTokens, float64(tokensOut), labels)
	}

	return response, tokensIn, tokensOut, err
}

// requestStatus maps an error onto a low-cardinality status label.
func requestStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Type != ErrorTypeUnknown {
		return perr.Type.String()
	}
	return "error"
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
