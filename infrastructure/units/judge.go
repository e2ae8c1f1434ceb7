package units

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-bestof/internal/domain"
	"github.com/ahrav/go-bestof/internal/ports"
)

// JudgeSystemPrompt is the system message sent with every ranking request.
const JudgeSystemPrompt = "You are an expert evaluator."

// Judge asks a second model to pick the best answers from a batch. It makes
// exactly one request per ranking and never parses the reply.
// A Judge is safe for concurrent use.
type Judge struct {
	client ports.LLMClient
	store  ports.ArtifactStore
	observers
}

// NewJudge creates a Judge that persists its evaluations to store.
func NewJudge(client ports.LLMClient, store ports.ArtifactStore, opts ...Option) (*Judge, error) {
	if client == nil {
		return nil, ErrLLMClientNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}
	return &Judge{
		client:    client,
		store:     store,
		observers: newObservers(opts),
	}, nil
}

// Rank sends all answers to the judge model and returns its evaluation.
// Answers keep their position: the answer at index i is shown as ANSWER i+1,
// failure placeholders included.
//
// TopK is clamped into [1, len(Answers)]. A request without answers, prompt
// or model yields a failed result without contacting the service. A failed
// request or a failure to persist the evaluation is reported in the result
// and never returned as an error.
func (j *Judge) Rank(ctx context.Context, req domain.RankingRequest) domain.RankingResult {
	ctx, span := j.tracer.Start(ctx, "Judge.Rank",
		trace.WithAttributes(
			attribute.String("ranking.model", req.JudgeModel),
			attribute.Int("ranking.answers", len(req.Answers)),
			attribute.Int("ranking.top_k.requested", req.TopK),
		),
	)
	defer span.End()

	norm, clamped, err := req.Normalize()
	if err != nil {
		j.logger.Error("ranking request rejected", zap.Error(err))
		return j.fail(span, req.JudgeModel, req.TopK, err)
	}
	if clamped {
		j.logger.Warn("top_k clamped to answer count",
			zap.Int("requested", req.TopK),
			zap.Int("effective", norm.TopK),
			zap.Int("answers", len(norm.Answers)),
		)
	}
	span.SetAttributes(attribute.Int("ranking.top_k", norm.TopK))

	prompt := BuildRankingPrompt(norm.OriginalPrompt, norm.Answers, norm.TopK)

	j.logger.Info("ranking started",
		zap.String("model", norm.JudgeModel),
		zap.Int("answers", len(norm.Answers)),
		zap.Int("top_k", norm.TopK),
	)

	start := time.Now()
	text, err := j.client.Complete(ctx, prompt, map[string]any{
		"model":  norm.JudgeModel,
		"system": JudgeSystemPrompt,
	})
	j.metrics.RecordLatency(MetricRanking, time.Since(start), map[string]string{
		"model":  norm.JudgeModel,
		"status": statusLabel(err != nil),
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		j.logger.Error("ranking failed", zap.String("model", norm.JudgeModel), zap.Error(err))
		return j.fail(span, norm.JudgeModel, norm.TopK, err)
	}

	path, err := j.store.SaveRanking(ctx, norm.TopK, norm.OriginalPrompt, text)
	if err != nil {
		j.logger.Error("failed to persist ranking", zap.String("path", path), zap.Error(err))
		return j.fail(span, norm.JudgeModel, norm.TopK, err)
	}

	j.metrics.RecordCounter(MetricRankingRequests, 1, map[string]string{
		"model":  norm.JudgeModel,
		"status": statusLabel(false),
	})
	span.SetStatus(codes.Ok, "")
	j.logger.Info("ranking finished", zap.String("path", path), zap.Duration("elapsed", time.Since(start)))

	return domain.RankingResult{Text: text, TopK: norm.TopK, Path: path}
}

func (j *Judge) fail(span trace.Span, model string, topK int, err error) domain.RankingResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	j.metrics.RecordCounter(MetricRankingRequests, 1, map[string]string{
		"model":  model,
		"status": statusLabel(true),
	})
	return domain.FailedRanking(topK, err)
}

// BuildRankingPrompt renders the evaluation request: the question, the
// answer count, each answer under its label and the closing instruction.
func BuildRankingPrompt(question string, answers []string, topK int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I have asked the following question: '%s'\n\n", question)
	fmt.Fprintf(&b, "I received %d different answers. Please evaluate them and identify the top %d best answers.\n\n",
		len(answers), topK)

	for i, answer := range answers {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", domain.AnswerLabel(i+1), answer)
	}

	fmt.Fprintf(&b, "\n\nPlease provide your evaluation and list the top %d answers by their Answer ID (e.g., Answer 1). "+
		"Explain your reasoning for the selection.", topK)
	return b.String()
}
