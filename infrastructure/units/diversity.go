package units

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-bestof/internal/domain"
)

// foldCaser is a package-level Unicode case folder shared by all analyzers.
var foldCaser = cases.Fold()

// DiversityConfig defines how answers in a batch are compared.
type DiversityConfig struct {
	// DuplicateThreshold is the similarity (0.0-1.0) at or above which an
	// answer counts as a near-duplicate of an earlier one.
	DuplicateThreshold float64 `yaml:"duplicate_threshold" json:"duplicate_threshold" validate:"min=0.0,max=1.0"`

	// SampleRunes limits how much of each answer is compared. Edit distance
	// is quadratic in length, so long answers are truncated.
	SampleRunes int `yaml:"sample_runes" json:"sample_runes" validate:"required,min=16,max=20000"`

	// CaseSensitive disables Unicode case folding before comparison.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`

	// MaxCompared caps how many successful answers, in index order, enter
	// the pairwise comparison. Zero means DefaultMaxCompared.
	MaxCompared int `yaml:"max_compared" json:"max_compared" validate:"min=0,max=200"`
}

// DefaultMaxCompared bounds the pairwise pass to 190 comparisons.
const DefaultMaxCompared = 20

// DefaultDiversityConfig returns the settings used by the pipeline.
func DefaultDiversityConfig() DiversityConfig {
	return DiversityConfig{
		DuplicateThreshold: 0.9,
		SampleRunes:        1000,
		MaxCompared:        DefaultMaxCompared,
	}
}

// DiversityAnalyzer measures how alike the successful answers of a batch
// are, using normalized Levenshtein similarity.
type DiversityAnalyzer struct {
	config DiversityConfig
	observers
}

// NewDiversityAnalyzer creates a DiversityAnalyzer.
func NewDiversityAnalyzer(config DiversityConfig, opts ...Option) (*DiversityAnalyzer, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	if config.MaxCompared == 0 {
		config.MaxCompared = DefaultMaxCompared
	}
	return &DiversityAnalyzer{config: config, observers: newObservers(opts)}, nil
}

// Summarize counts successes and failures in results and fills in the
// similarity fields from the successful answers. Failed results are ignored
// when comparing, and only the first MaxCompared successful answers are
// compared. If ctx is cancelled mid-pass the similarity fields stay zero.
func (d *DiversityAnalyzer) Summarize(ctx context.Context, results []domain.GenerationResult) domain.BatchSummary {
	_, span := d.tracer.Start(ctx, "DiversityAnalyzer.Summarize",
		trace.WithAttributes(attribute.Int("diversity.results", len(results))),
	)
	defer span.End()

	summary := domain.Summarize(results)

	limit := min(summary.Succeeded, d.config.MaxCompared)
	prepared := make([]string, 0, limit)
	for _, r := range results {
		if len(prepared) == limit {
			break
		}
		if !r.Failed() {
			prepared = append(prepared, d.prepare(r.Text))
		}
	}
	if len(prepared) < 2 {
		return summary
	}
	if limit < summary.Succeeded {
		d.logger.Debug("diversity analysis capped",
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("compared", limit),
		)
	}

	var total float64
	pairs, duplicates := 0, 0
	for i := 1; i < len(prepared); i++ {
		if err := ctx.Err(); err != nil {
			d.logger.Debug("diversity analysis abandoned", zap.Error(err))
			span.RecordError(err)
			return summary
		}
		duplicate := false
		for k := 0; k < i; k++ {
			sim := Similarity(prepared[i], prepared[k])
			total += sim
			pairs++
			if sim >= d.config.DuplicateThreshold {
				duplicate = true
			}
		}
		if duplicate {
			duplicates++
		}
	}
	summary.Compared = len(prepared)
	summary.NearDuplicates = duplicates
	summary.MeanSimilarity = total / float64(pairs)

	span.SetAttributes(
		attribute.Int("diversity.compared", summary.Compared),
		attribute.Int("diversity.near_duplicates", summary.NearDuplicates),
		attribute.Float64("diversity.mean_similarity", summary.MeanSimilarity),
	)
	d.metrics.RecordGauge(MetricBatchSimilarity, summary.MeanSimilarity, nil)
	return summary
}

// prepare trims, optionally folds case, and truncates s to SampleRunes.
func (d *DiversityAnalyzer) prepare(s string) string {
	s = strings.TrimSpace(s)
	if !d.config.CaseSensitive {
		s = foldCaser.String(s)
	}
	if utf8.RuneCountInString(s) > d.config.SampleRunes {
		s = string([]rune(s)[:d.config.SampleRunes])
	}
	return s
}

// Similarity returns 1 - distance/maxLen for the rune-level Levenshtein
// distance of s1 and s2. Identical strings, including two empty ones, score
// 1.0.
func Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	maxLen := utf8.RuneCountInString(s1)
	if n := utf8.RuneCountInString(s2); n > maxLen {
		maxLen = n
	}

	similarity := 1.0 - float64(levenshtein.ComputeDistance(s1, s2))/float64(maxLen)
	if similarity < 0 {
		return 0
	}
	return similarity
}
