// Package ports defines the interfaces that separate the sampling and
// ranking logic from the completion service, artifact storage and
// observability backends.
package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the text of the first choice and any error encountered.
	//
	// Parameters:
	//   - ctx: Context for cancellation and deadline propagation
	//   - prompt: The user message for the LLM
	//   - options: Provider-specific options (model, temperature, system, etc.)
	//
	// Common options include:
	//   - "model": string (overrides the client's default model)
	//   - "temperature": float64 (omitted means the service default)
	//   - "system": string (system role message)
	//   - "max_tokens": int
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the default model identifier used by this client.
	GetModel() string
}

// ArtifactStore persists generation and ranking outputs.
// Each generation index maps to its own artifact so concurrent writers
// for different indices never touch the same file.
type ArtifactStore interface {
	// Prepare makes sure the storage location exists and is writable.
	// It is called once before any task is scheduled.
	Prepare(ctx context.Context) error

	// SaveResponse writes the artifact for the generation at index.
	// It returns the location the artifact was written to.
	SaveResponse(ctx context.Context, index int, prompt, text string) (string, error)

	// SaveRanking writes the judge's evaluation.
	// It returns the location the artifact was written to.
	SaveRanking(ctx context.Context, topK int, prompt, text string) (string, error)

	// Location describes where artifacts are written, for display.
	Location() string
}

// ProgressReporter observes generation progress.
// Implementations must not block for long; they are called from worker
// goroutines.
type ProgressReporter interface {
	// Start announces a batch of total tasks for the given model.
	Start(total int, model string)

	// Advance is called once per completed task (success or failure) with
	// the number of tasks completed so far.
	Advance(done, total int)

	// Finish is called after every task has completed.
	Finish()
}

// NopProgress is a ProgressReporter that ignores every event.
type NopProgress struct{}

// Start implements ProgressReporter.
func (NopProgress) Start(int, string) {}

// Advance implements ProgressReporter.
func (NopProgress) Advance(int, int) {}

// Finish implements ProgressReporter.
func (NopProgress) Finish() {}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like task failures, requests, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
