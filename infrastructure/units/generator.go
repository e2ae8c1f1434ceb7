package units

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-bestof/internal/domain"
	"github.com/ahrav/go-bestof/internal/ports"
)

const (
	// MaxConcurrencyLimit is the hard cap on simultaneous generation calls.
	MaxConcurrencyLimit = 20
	// DefaultMaxConcurrency is used when the configuration sets no cap.
	DefaultMaxConcurrency = MaxConcurrencyLimit
)

// GeneratorConfig defines the tunables of a Generator.
type GeneratorConfig struct {
	// MaxConcurrency limits the number of completion calls in flight.
	// The effective width of a batch is min(count, MaxConcurrency).
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"required,min=1,max=20"`

	// MaxTokens caps each answer. Zero leaves the service default.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=0,max=200000"`
}

// DefaultGeneratorConfig returns a GeneratorConfig with the widest allowed
// concurrency and no token cap.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{MaxConcurrency: DefaultMaxConcurrency}
}

// Option customizes a Generator or Judge.
type Option func(*observers)

// observers bundles the logging, metrics, tracing and progress hooks shared
// by the units.
type observers struct {
	logger   *zap.Logger
	metrics  ports.MetricsCollector
	tracer   trace.Tracer
	progress ports.ProgressReporter
}

func newObservers(opts []Option) observers {
	o := observers{
		logger:   zap.NewNop(),
		metrics:  noopMetrics{},
		tracer:   otel.Tracer("bestof/units"),
		progress: ports.NopProgress{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *observers) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics ports.MetricsCollector) Option {
	return func(o *observers) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *observers) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithProgress sets the progress reporter notified as generation tasks
// complete. The Judge ignores it.
func WithProgress(progress ports.ProgressReporter) Option {
	return func(o *observers) {
		if progress != nil {
			o.progress = progress
		}
	}
}

// Generator issues the same prompt many times in parallel and collects one
// result per request in submission order. A failed request never affects
// its siblings; its slot holds a marked error string instead.
// A Generator is safe for concurrent use.
type Generator struct {
	client ports.LLMClient
	store  ports.ArtifactStore
	config GeneratorConfig
	observers
}

// NewGenerator creates a Generator. It returns an error if a dependency is
// missing or the configuration is invalid.
func NewGenerator(
	client ports.LLMClient,
	store ports.ArtifactStore,
	config GeneratorConfig,
	opts ...Option,
) (*Generator, error) {
	if client == nil {
		return nil, ErrLLMClientNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	return &Generator{
		client:    client,
		store:     store,
		config:    config,
		observers: newObservers(opts),
	}, nil
}

// Generate runs count completion requests for prompt against model and
// returns exactly count results ordered by index (1..count).
//
// Only setup problems are returned as an error: an empty prompt or model,
// count < 1, or an artifact store that cannot be prepared. In those cases no
// request is sent. Every per-request failure, including a failure to persist
// the answer, is recorded in that request's result.
//
// temperature is forwarded as given; a value the service rejects surfaces as
// a failed result.
func (g *Generator) Generate(
	ctx context.Context,
	prompt, model string,
	count int,
	temperature float64,
) ([]domain.GenerationResult, error) {
	switch {
	case prompt == "":
		return nil, domain.ErrPromptEmpty
	case model == "":
		return nil, domain.ErrModelEmpty
	case count < 1:
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidCount, count)
	}

	ctx, span := g.tracer.Start(ctx, "Generator.Generate",
		trace.WithAttributes(
			attribute.String("generation.model", model),
			attribute.Int("generation.count", count),
			attribute.Float64("generation.temperature", temperature),
		),
	)
	defer span.End()

	if err := g.store.Prepare(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrStorePrepare, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	width := min(count, g.config.MaxConcurrency)
	tasks := domain.NewGenerationTasks(prompt, model, count, temperature)
	results := make([]domain.GenerationResult, count)

	g.logger.Info("generation started",
		zap.String("model", model),
		zap.Int("count", count),
		zap.Int("concurrency", width),
		zap.String("output", g.store.Location()),
	)
	g.progress.Start(count, model)
	defer g.progress.Finish()

	start := time.Now()
	var inFlight atomic.Int64
	// progressMu orders counter increments with the Advance calls so
	// reporters see 1..count in sequence.
	var (
		progressMu sync.Mutex
		completed  int
	)

	// Not bound to ctx: tasks never cancel each other and never return an
	// error.
	var group errgroup.Group
	group.SetLimit(width)

	for _, task := range tasks {
		group.Go(func() error {
			g.metrics.RecordGauge(MetricGenerationRunning, float64(inFlight.Add(1)), map[string]string{"model": model})
			result := g.runTask(ctx, task)
			g.metrics.RecordGauge(MetricGenerationRunning, float64(inFlight.Add(-1)), map[string]string{"model": model})

			results[task.Index-1] = result
			progressMu.Lock()
			completed++
			g.progress.Advance(completed, count)
			progressMu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	summary := domain.Summarize(results)
	g.metrics.RecordLatency(MetricGenerationBatch, time.Since(start), map[string]string{
		"model":  model,
		"status": statusLabel(summary.Failed > 0),
	})
	span.SetAttributes(
		attribute.Int("generation.succeeded", summary.Succeeded),
		attribute.Int("generation.failed", summary.Failed),
	)
	g.logger.Info("generation finished",
		zap.String("model", model),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)

	return results, nil
}

// runTask performs one completion and persists its text or error text. It never panics on a
// remote failure and always returns a result for task.Index.
func (g *Generator) runTask(ctx context.Context, task domain.GenerationTask) domain.GenerationResult {
	ctx, span := g.tracer.Start(ctx, "Generator.task",
		trace.WithAttributes(
			attribute.Int("task.index", task.Index),
			attribute.String("task.model", task.Model),
		),
	)
	defer span.End()

	start := time.Now()
	result := g.complete(ctx, task)

	labels := map[string]string{"model": task.Model, "status": statusLabel(result.Failed())}
	g.metrics.RecordCounter(MetricGenerationTasks, 1, labels)
	g.metrics.RecordLatency(MetricGenerationTask, time.Since(start), labels)

	if result.Failed() {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		g.logger.Warn("generation task failed",
			zap.Int("index", task.Index),
			zap.String("model", task.Model),
			zap.Error(result.Err),
		)
		return result
	}

	span.SetAttributes(attribute.Int("task.answer.length", len(result.Text)))
	g.logger.Debug("generation task finished",
		zap.Int("index", task.Index),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

func (g *Generator) complete(ctx context.Context, task domain.GenerationTask) domain.GenerationResult {
	options := map[string]any{
		"model":       task.Model,
		"temperature": task.Temperature,
	}
	if g.config.MaxTokens > 0 {
		options["max_tokens"] = g.config.MaxTokens
	}

	text, err := g.client.Complete(ctx, task.Prompt, options)
	if err == nil && strings.TrimSpace(text) == "" {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		result := taskFailure(task.Index, StageComplete, err)
		g.persistFailure(ctx, task, result.Text)
		return result
	}

	if _, err := g.store.SaveResponse(ctx, task.Index, task.Prompt, text); err != nil {
		return taskFailure(task.Index, StagePersist, err)
	}

	return domain.SucceededResult(task.Index, text)
}

// persistFailure writes the error text as the task's artifact so that every
// index has a record for this run. The write ignores cancellation of ctx; a
// cancelled task still replaces whatever an earlier run left behind.
func (g *Generator) persistFailure(ctx context.Context, task domain.GenerationTask, text string) {
	path, err := g.store.SaveResponse(context.WithoutCancel(ctx), task.Index, task.Prompt, text)
	if err != nil {
		g.logger.Warn("failed to persist failed generation",
			zap.Int("index", task.Index),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// taskFailure renders the cause in the result text and keeps the stage in
// the error tag.
func taskFailure(index int, stage string, cause error) domain.GenerationResult {
	result := domain.FailedResult(index, cause)
	result.Err = domain.NewTaskError(index, stage, cause)
	return result
}

// noopMetrics discards every metric.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string) {}
func (noopMetrics) RecordGauge(string, float64, map[string]string) {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string) {}
