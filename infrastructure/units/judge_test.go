package units

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ahrav/go-bestof/infrastructure/storage"
	"github.com/ahrav/go-bestof/internal/domain"
	"github.com/ahrav/go-bestof/internal/testutils"
)

func TestNewJudge_Validation(t *testing.T) {
	store, _ := newMemStore()

	_, err := NewJudge(nil, store)
	assert.ErrorIs(t, err, ErrLLMClientNil)

	_, err = NewJudge(testutils.NewMockLLMClient("m"), nil)
	assert.ErrorIs(t, err, ErrStoreNil)
}

func TestBuildRankingPrompt(t *testing.T) {
	got := BuildRankingPrompt("What is 2+2?", []string{"4", "Error: timeout"}, 1)

	want := "I have asked the following question: 'What is 2+2?'\n\n" +
		"I received 2 different answers. Please evaluate them and identify the top 1 best answers.\n\n" +
		"--- ANSWER 1 ---\n4\n\n" +
		"--- ANSWER 2 ---\nError: timeout\n\n" +
		"\n\nPlease provide your evaluation and list the top 1 answers by their Answer ID (e.g., Answer 1). " +
		"Explain your reasoning for the selection."
	assert.Equal(t, want, got)
}

func TestBuildRankingPrompt_LabelsEveryAnswerInOrder(t *testing.T) {
	answers := []string{"alpha", "beta", "gamma", "delta"}
	prompt := BuildRankingPrompt("Q", answers, 2)

	last := -1
	for i, answer := range answers {
		label := "--- " + domain.AnswerLabel(i+1) + " ---\n" + answer
		pos := strings.Index(prompt, label)
		require.GreaterOrEqual(t, pos, 0, "missing %q", label)
		assert.Greater(t, pos, last, "labels must follow submission order")
		last = pos
	}
	assert.Equal(t, 4, strings.Count(prompt, "--- ANSWER "))
}

func TestJudge_Rank(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	client.Handler = func(context.Context, testutils.Call) (string, error) {
		return "Answer 2 and Answer 1 are best.", nil
	}
	store, fs := newMemStore()
	require.NoError(t, store.Prepare(context.Background()))
	judge, err := NewJudge(client, store, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	result := judge.Rank(context.Background(), domain.RankingRequest{
		OriginalPrompt: "What is 2+2?",
		Answers:        []string{"4", "four"},
		JudgeModel:     "judge-model",
		TopK:           2,
	})

	require.False(t, result.Failed())
	assert.Equal(t, "Answer 2 and Answer 1 are best.", result.Text)
	assert.Equal(t, 2, result.TopK)
	assert.Equal(t, filepath.Join(testOutputDir, storage.RankingFileName), result.Path)

	calls := client.Calls()
	require.Len(t, calls, 1, "exactly one ranking request")
	assert.Equal(t, "judge-model", calls[0].Options["model"])
	assert.Equal(t, JudgeSystemPrompt, calls[0].Options["system"])
	assert.NotContains(t, calls[0].Options, "temperature")
	assert.Equal(t, BuildRankingPrompt("What is 2+2?", []string{"4", "four"}, 2), calls[0].Prompt)

	data, err := afero.ReadFile(fs, result.Path)
	require.NoError(t, err)
	assert.Equal(t, storage.RenderRanking(2, "What is 2+2?", "Answer 2 and Answer 1 are best."), string(data))
}

func TestJudge_ClampsTopK(t *testing.T) {
	tests := []struct {
		name      string
		topK      int
		answers   int
		wantTopK  int
		wantWarns int
	}{
		{name: "within range", topK: 2, answers: 3, wantTopK: 2},
		{name: "above answer count", topK: 5, answers: 3, wantTopK: 3, wantWarns: 1},
		{name: "zero", topK: 0, answers: 3, wantTopK: 1, wantWarns: 1},
		{name: "negative", topK: -2, answers: 1, wantTopK: 1, wantWarns: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			client := testutils.NewMockLLMClient("m")
			store, _ := newMemStore()
			require.NoError(t, store.Prepare(context.Background()))
			judge, err := NewJudge(client, store, WithLogger(zap.New(core)))
			require.NoError(t, err)

			answers := make([]string, tt.answers)
			for i := range answers {
				answers[i] = "answer"
			}

			result := judge.Rank(context.Background(), domain.RankingRequest{
				OriginalPrompt: "Q",
				Answers:        answers,
				JudgeModel:     "judge",
				TopK:           tt.topK,
			})

			require.False(t, result.Failed())
			assert.Equal(t, tt.wantTopK, result.TopK)
			assert.Equal(t, tt.wantWarns, logs.FilterMessage("top_k clamped to answer count").Len())
			require.Len(t, client.Calls(), 1)
			assert.Contains(t, client.Calls()[0].Prompt, "identify the top "+strconv.Itoa(tt.wantTopK)+" best answers")
		})
	}
}

func TestJudge_FailuresBecomeErrorText(t *testing.T) {
	tests := []struct {
		name        string
		req         domain.RankingRequest
		handler     func(context.Context, testutils.Call) (string, error)
		failRanking bool
		wantCalls   int
		wantText    string
	}{
		{
			name: "remote failure",
			req:  domain.RankingRequest{OriginalPrompt: "Q", Answers: []string{"a"}, JudgeModel: "j", TopK: 1},
			handler: func(context.Context, testutils.Call) (string, error) {
				return "", errors.New("model not found")
			},
			wantCalls: 1,
			wantText:  "Error: model not found",
		},
		{
			name: "empty reply",
			req:  domain.RankingRequest{OriginalPrompt: "Q", Answers: []string{"a"}, JudgeModel: "j", TopK: 1},
			handler: func(context.Context, testutils.Call) (string, error) {
				return "", nil
			},
			wantCalls: 1,
			wantText:  "Error: " + domain.ErrEmptyResponse.Error(),
		},
		{
			name:        "persistence failure",
			req:         domain.RankingRequest{OriginalPrompt: "Q", Answers: []string{"a"}, JudgeModel: "j", TopK: 1},
			failRanking: true,
			wantCalls:   1,
			wantText:    "Error: storage error: operation=write, path=ranking, err=disk full",
		},
		{
			name:     "no answers",
			req:      domain.RankingRequest{OriginalPrompt: "Q", JudgeModel: "j", TopK: 1},
			wantText: "Error: validation error for RankingRequest: no answers to rank",
		},
		{
			name:     "no judge model",
			req:      domain.RankingRequest{OriginalPrompt: "Q", Answers: []string{"a"}, TopK: 1},
			wantText: "Error: validation error for RankingRequest: model cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutils.NewMockLLMClient("m")
			client.Handler = tt.handler
			mem, _ := newMemStore()
			require.NoError(t, mem.Prepare(context.Background()))
			metrics := newMetricsRecorder()
			judge, err := NewJudge(client, &failingStore{ArtifactStore: mem, failRanking: tt.failRanking}, WithMetrics(metrics))
			require.NoError(t, err)

			var result domain.RankingResult
			require.NotPanics(t, func() { result = judge.Rank(context.Background(), tt.req) })

			assert.True(t, result.Failed())
			assert.Equal(t, tt.wantText, result.Text)
			assert.True(t, strings.HasPrefix(result.Text, domain.ErrorMarker))
			assert.Empty(t, result.Path)
			assert.Equal(t, tt.wantCalls, client.CallCount())
			assert.Equal(t, 1.0, metrics.counters[MetricRankingRequests+":failure"])
		})
	}
}
