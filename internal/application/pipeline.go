// Package application composes the generator, the judge and the diversity
// analyzer into a single best-of-N run driven by Config.
package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-bestof/infrastructure/storage"
	"github.com/ahrav/go-bestof/infrastructure/units"
	"github.com/ahrav/go-bestof/internal/domain"
	"github.com/ahrav/go-bestof/internal/ports"
)

// ErrNoResponses is returned when generation produced an empty batch.
var ErrNoResponses = errors.New("no responses were generated")

// Phase identifies the stage a run is in.
type Phase string

// Phases reported to a PhaseObserver, in order.
const (
	PhaseGenerating Phase = "generating"
	PhaseRanking    Phase = "ranking"
	PhaseDone       Phase = "done"
)

// PhaseObserver is notified when a run enters a new phase. model is the
// model used by that phase and is empty for PhaseDone.
type PhaseObserver func(phase Phase, model string)

// StoreFactory returns the artifact store for the run identified by runID.
type StoreFactory func(runID uuid.UUID) ports.ArtifactStore

// NewStoreFactory returns a StoreFactory writing Markdown artifacts under dir
// on fs. With perRun set, each run gets its own subdirectory named after its
// run ID.
func NewStoreFactory(fs afero.Fs, dir string, perRun bool) StoreFactory {
	return func(runID uuid.UUID) ports.ArtifactStore {
		if perRun {
			return storage.NewMarkdownStore(fs, filepath.Join(dir, runID.String()))
		}
		return storage.NewMarkdownStore(fs, dir)
	}
}

// RunReport is everything a run produced.
type RunReport struct {
	RunID       uuid.UUID                 `json:"run_id"`
	Question    string                    `json:"question"`
	Results     []domain.GenerationResult `json:"results"`
	Summary     domain.BatchSummary       `json:"summary"`
	Ranking     domain.RankingResult      `json:"ranking"`
	RankingPath string                    `json:"ranking_path,omitempty"`
	OutputDir   string                    `json:"output_dir"`
	Elapsed     time.Duration             `json:"elapsed"`
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger used by the pipeline and its units.
func WithLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
			p.unitOpts = append(p.unitOpts, units.WithLogger(logger))
		}
	}
}

// WithMetrics forwards a metrics collector to the units.
func WithMetrics(metrics ports.MetricsCollector) PipelineOption {
	return func(p *Pipeline) { p.unitOpts = append(p.unitOpts, units.WithMetrics(metrics)) }
}

// WithTracer forwards a tracer to the units.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.unitOpts = append(p.unitOpts, units.WithTracer(tracer)) }
}

// WithProgress forwards a generation progress reporter to the generator.
func WithProgress(progress ports.ProgressReporter) PipelineOption {
	return func(p *Pipeline) { p.unitOpts = append(p.unitOpts, units.WithProgress(progress)) }
}

// WithPhaseObserver registers fn to be called on every phase change.
func WithPhaseObserver(fn PhaseObserver) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.onPhase = fn
		}
	}
}

// WithDiversityConfig overrides the near-duplicate detection settings.
func WithDiversityConfig(cfg units.DiversityConfig) PipelineOption {
	return func(p *Pipeline) { p.diversityCfg = cfg }
}

// WithRunIDs replaces the run ID source.
func WithRunIDs(next func() uuid.UUID) PipelineOption {
	return func(p *Pipeline) {
		if next != nil {
			p.newRunID = next
		}
	}
}

// Pipeline runs one question through generation, analysis and ranking.
// A Pipeline can be reused; each Run gets a fresh run ID and store.
type Pipeline struct {
	cfg    Config
	client ports.LLMClient
	stores StoreFactory

	logger       *zap.Logger
	unitOpts     []units.Option
	onPhase      PhaseObserver
	diversityCfg units.DiversityConfig
	newRunID     func() uuid.UUID
}

// NewPipeline validates cfg and builds a Pipeline around client.
func NewPipeline(cfg Config, client ports.LLMClient, stores StoreFactory, opts ...PipelineOption) (*Pipeline, error) {
	if client == nil {
		return nil, units.ErrLLMClientNil
	}
	if stores == nil {
		return nil, units.ErrStoreNil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:          cfg,
		client:       client,
		stores:       stores,
		logger:       zap.NewNop(),
		onPhase:      func(Phase, string) {},
		diversityCfg: units.DefaultDiversityConfig(),
		newRunID:     uuid.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Run samples question cfg.Generator.Count times, summarizes the batch and
// asks the judge for the top cfg.Judge.TopK answers.
//
// Setup failures (empty question, unusable output location) are returned as
// errors before any request is sent. Per-answer and ranking failures are
// carried in the report.
func (p *Pipeline) Run(ctx context.Context, question string) (*RunReport, error) {
	if question == "" {
		return nil, domain.ErrPromptEmpty
	}

	start := time.Now()
	runID := p.newRunID()
	store := p.stores(runID)
	logger := p.logger.With(zap.String("run_id", runID.String()))

	generator, err := units.NewGenerator(p.client, store, p.cfg.GeneratorConfig(), p.unitOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	judge, err := units.NewJudge(p.client, store, p.unitOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge: %w", err)
	}
	analyzer, err := units.NewDiversityAnalyzer(p.diversityCfg, p.unitOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create diversity analyzer: %w", err)
	}

	logger.Info("run started",
		zap.String("generator_model", p.cfg.Generator.Model),
		zap.String("judge_model", p.cfg.Judge.Model),
		zap.Int("count", p.cfg.Generator.Count),
		zap.Int("top_k", p.cfg.Judge.TopK),
	)

	p.onPhase(PhaseGenerating, p.cfg.Generator.Model)
	results, err := generator.Generate(ctx, question, p.cfg.Generator.Model, p.cfg.Generator.Count, p.cfg.Generator.Temperature)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoResponses
	}

	summary := analyzer.Summarize(ctx, results)
	logger.Info("generated responses",
		zap.Int("total", summary.Total),
		zap.Int("failed", summary.Failed),
		zap.Int("near_duplicates", summary.NearDuplicates),
		zap.Float64("mean_similarity", summary.MeanSimilarity),
	)

	p.onPhase(PhaseRanking, p.cfg.Judge.Model)
	ranking := judge.Rank(ctx, domain.RankingRequest{
		OriginalPrompt: question,
		Answers:        domain.Texts(results),
		JudgeModel:     p.cfg.Judge.Model,
		TopK:           p.cfg.Judge.TopK,
	})
	p.onPhase(PhaseDone, "")

	report := &RunReport{
		RunID:       runID,
		Question:    question,
		Results:     results,
		Summary:     summary,
		Ranking:     ranking,
		RankingPath: ranking.Path,
		OutputDir:   store.Location(),
		Elapsed:     time.Since(start),
	}
	logger.Info("run finished",
		zap.Bool("ranking_failed", ranking.Failed()),
		zap.String("ranking_path", ranking.Path),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}
