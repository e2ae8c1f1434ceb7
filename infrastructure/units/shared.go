// Package units provides the generator that samples a prompt many times and
// the judge that ranks the sampled answers.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Metric names recorded through ports.MetricsCollector.
const (
	MetricGenerationTasks   = "generation_tasks_total"
	MetricGenerationTask    = "generation_task"
	MetricGenerationBatch   = "generation_batch"
	MetricGenerationRunning = "generation_in_flight"
	MetricRankingRequests   = "ranking_requests_total"
	MetricRanking           = "ranking"
	MetricBatchSimilarity   = "batch_mean_similarity"
)

// Task stages reported in domain.TaskError.
const (
	StageComplete = "complete"
	StagePersist  = "persist"
)

// Common errors returned while constructing or running units.
var (
	// ErrLLMClientNil is returned when a unit is built without a client.
	ErrLLMClientNil = errors.New("LLM client cannot be nil")

	// ErrStoreNil is returned when a unit is built without an artifact store.
	ErrStoreNil = errors.New("artifact store cannot be nil")

	// ErrConfigValidation wraps configuration validation failures.
	ErrConfigValidation = errors.New("configuration validation failed")

	// ErrStorePrepare is returned when the artifact store cannot be prepared
	// before generation starts.
	ErrStorePrepare = errors.New("failed to prepare artifact store")
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

func statusLabel(failed bool) string {
	if failed {
		return "failure"
	}
	return "success"
}
