package units

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahrav/go-bestof/infrastructure/storage"
	"github.com/ahrav/go-bestof/internal/domain"
	"github.com/ahrav/go-bestof/internal/ports"
	"github.com/ahrav/go-bestof/internal/testutils"
)

func newTestGenerator(t *testing.T, client ports.LLMClient, store ports.ArtifactStore, maxConcurrency int, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	gen, err := NewGenerator(client, store, GeneratorConfig{MaxConcurrency: maxConcurrency}, opts...)
	require.NoError(t, err)
	return gen
}

func TestNewGenerator_Validation(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	store, _ := newMemStore()

	tests := []struct {
		name    string
		client  ports.LLMClient
		store   ports.ArtifactStore
		config  GeneratorConfig
		wantErr error
	}{
		{name: "nil client", store: store, config: DefaultGeneratorConfig(), wantErr: ErrLLMClientNil},
		{name: "nil store", client: client, config: DefaultGeneratorConfig(), wantErr: ErrStoreNil},
		{name: "zero concurrency", client: client, store: store, config: GeneratorConfig{}, wantErr: ErrConfigValidation},
		{name: "concurrency above cap", client: client, store: store, config: GeneratorConfig{MaxConcurrency: 21}, wantErr: ErrConfigValidation},
		{name: "negative max tokens", client: client, store: store, config: GeneratorConfig{MaxConcurrency: 1, MaxTokens: -1}, wantErr: ErrConfigValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewGenerator(tt.client, tt.store, tt.config)
			assert.Nil(t, gen)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	gen, err := NewGenerator(client, store, DefaultGeneratorConfig())
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestGenerator_ResultsOrderedDespiteOutOfOrderCompletion(t *testing.T) {
	const count = 5
	client := testutils.NewMockLLMClient("m")
	client.Delay = func(seq int) time.Duration { return time.Duration(count+1-seq) * 20 * time.Millisecond }

	var mu sync.Mutex
	var completionOrder []int
	client.Handler = func(_ context.Context, call testutils.Call) (string, error) {
		mu.Lock()
		completionOrder = append(completionOrder, call.Seq)
		mu.Unlock()
		return fmt.Sprintf("answer from call %d", call.Seq), nil
	}

	store, fs := newMemStore()
	gen := newTestGenerator(t, client, store, MaxConcurrencyLimit)

	results, err := gen.Generate(context.Background(), "What is 2+2?", "model-A", count, 0.7)
	require.NoError(t, err)
	require.Len(t, results, count)

	seen := map[string]bool{}
	for i, r := range results {
		assert.Equal(t, i+1, r.Index, "results must be ordered by index")
		assert.False(t, r.Failed())
		assert.False(t, seen[r.Text], "every slot holds a distinct answer")
		seen[r.Text] = true

		data, err := afero.ReadFile(fs, filepath.Join(testOutputDir, storage.ResponseFileName(i+1)))
		require.NoError(t, err)
		assert.Equal(t, storage.RenderResponse(i+1, "What is 2+2?", r.Text), string(data),
			"result %d must match the artifact written for the same index", i+1)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, sort.IntsAreSorted(completionOrder), "completions should have arrived out of order")
}

func TestGenerator_RespectsConcurrencyCap(t *testing.T) {
	tests := []struct {
		name           string
		count          int
		maxConcurrency int
		wantMax        int
	}{
		{name: "capped at twenty", count: 30, maxConcurrency: MaxConcurrencyLimit, wantMax: 20},
		{name: "configured cap", count: 10, maxConcurrency: 3, wantMax: 3},
		{name: "count below cap", count: 2, maxConcurrency: MaxConcurrencyLimit, wantMax: 2},
		{name: "sequential", count: 4, maxConcurrency: 1, wantMax: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutils.NewMockLLMClient("m")
			client.Delay = func(int) time.Duration { return 25 * time.Millisecond }
			store, _ := newMemStore()
			gen := newTestGenerator(t, client, store, tt.maxConcurrency)

			results, err := gen.Generate(context.Background(), "prompt", "m", tt.count, 0.7)
			require.NoError(t, err)
			assert.Len(t, results, tt.count)
			assert.Equal(t, tt.count, client.CallCount(), "exactly one call per task")
			assert.LessOrEqual(t, client.MaxInFlight(), tt.wantMax)
			assert.GreaterOrEqual(t, client.MaxInFlight(), 1)
		})
	}
}

func TestGenerator_IsolatesRemoteFailure(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	client.Handler = func(_ context.Context, call testutils.Call) (string, error) {
		if call.Seq == 2 {
			return "", errors.New("service unavailable")
		}
		return fmt.Sprintf("answer %d", call.Seq), nil
	}

	store, fs := newMemStore()
	// One worker makes call order equal index order.
	gen := newTestGenerator(t, client, store, 1)

	results, err := gen.Generate(context.Background(), "Q", "m", 3, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "answer 1", results[0].Text)
	assert.Equal(t, "Error: service unavailable", results[1].Text)
	assert.Equal(t, "answer 3", results[2].Text)

	require.True(t, results[1].Failed())
	var taskErr *domain.TaskError
	require.ErrorAs(t, results[1].Err, &taskErr)
	assert.Equal(t, 2, taskErr.Index)
	assert.Equal(t, StageComplete, taskErr.Stage)

	for index, want := range map[int]string{1: "answer 1", 2: "Error: service unavailable", 3: "answer 3"} {
		data, err := afero.ReadFile(fs, filepath.Join(testOutputDir, storage.ResponseFileName(index)))
		require.NoError(t, err, "artifact for index %d", index)
		assert.Equal(t, storage.RenderResponse(index, "Q", want), string(data))
	}
}

func TestGenerator_FailureReplacesEarlierArtifact(t *testing.T) {
	store, fs := newMemStore()

	first := newTestGenerator(t, testutils.NewMockLLMClient("m"), store, 1)
	_, err := first.Generate(context.Background(), "first question", "m", 3, 0.7)
	require.NoError(t, err)

	client := testutils.NewMockLLMClient("m")
	client.Handler = func(_ context.Context, call testutils.Call) (string, error) {
		if call.Seq == 1 {
			return "", errors.New("boom")
		}
		return "fresh answer", nil
	}
	second := newTestGenerator(t, client, store, 1)
	results, err := second.Generate(context.Background(), "second question", "m", 3, 0.7)
	require.NoError(t, err)
	require.Equal(t, "Error: boom", results[0].Text)

	for index := 1; index <= 3; index++ {
		data, err := afero.ReadFile(fs, filepath.Join(testOutputDir, storage.ResponseFileName(index)))
		require.NoError(t, err)
		assert.Equal(t, storage.RenderResponse(index, "second question", results[index-1].Text), string(data))
		assert.NotContains(t, string(data), "first question")
	}
}

func TestGenerator_EmptyResponseArtifactHoldsErrorText(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	client.Handler = func(context.Context, testutils.Call) (string, error) { return "", nil }
	store, fs := newMemStore()
	gen := newTestGenerator(t, client, store, 1)

	_, err := gen.Generate(context.Background(), "Q", "m", 1, 0.7)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, filepath.Join(testOutputDir, storage.ResponseFileName(1)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Answer\n"+domain.FormatError(domain.ErrEmptyResponse))
}

func TestGenerator_PersistenceFailureBecomesTaskFailure(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	store, _ := newMemStore()
	gen := newTestGenerator(t, client, &failingStore{ArtifactStore: store, failIndex: 2}, MaxConcurrencyLimit)

	results, err := gen.Generate(context.Background(), "Q", "m", 3, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.False(t, results[0].Failed())
	assert.False(t, results[2].Failed())
	require.True(t, results[1].Failed())
	assert.True(t, strings.HasPrefix(results[1].Text, domain.ErrorMarker))
	assert.Contains(t, results[1].Text, "disk full")
	assert.ErrorIs(t, results[1].Err, errDiskFull)

	var taskErr *domain.TaskError
	require.ErrorAs(t, results[1].Err, &taskErr)
	assert.Equal(t, StagePersist, taskErr.Stage)
}

func TestGenerator_EmptyResponseIsFailure(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	client.Handler = func(context.Context, testutils.Call) (string, error) { return "  \n", nil }
	store, _ := newMemStore()
	gen := newTestGenerator(t, client, store, MaxConcurrencyLimit)

	results, err := gen.Generate(context.Background(), "Q", "m", 2, 0.7)
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, domain.ErrEmptyResponse)
		assert.Equal(t, "Error: "+domain.ErrEmptyResponse.Error(), r.Text)
	}
}

func TestGenerator_AllFailuresStillYieldCountResults(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	client.Handler = func(context.Context, testutils.Call) (string, error) {
		return "", errors.New("invalid temperature")
	}
	store, _ := newMemStore()
	gen := newTestGenerator(t, client, store, MaxConcurrencyLimit)

	results, err := gen.Generate(context.Background(), "Q", "m", 4, 7.5)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, i+1, r.Index)
		assert.Equal(t, "Error: invalid temperature", r.Text)
	}
	assert.Equal(t, 4, domain.Summarize(results).Failed)
}

func TestGenerator_ForwardsOptions(t *testing.T) {
	client := testutils.NewMockLLMClient("default-model")
	store, _ := newMemStore()
	gen, err := NewGenerator(client, store, GeneratorConfig{MaxConcurrency: 2, MaxTokens: 300})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "Q", "openai/gpt-4o", 2, 1.7)
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Equal(t, "Q", call.Prompt)
		assert.Equal(t, "openai/gpt-4o", call.Options["model"])
		assert.Equal(t, 1.7, call.Options["temperature"], "temperature is passed through unvalidated")
		assert.Equal(t, 300, call.Options["max_tokens"])
		assert.NotContains(t, call.Options, "system")
	}
}

func TestGenerator_SetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		model   string
		count   int
		store   func() ports.ArtifactStore
		wantErr error
	}{
		{name: "empty prompt", model: "m", count: 1, wantErr: domain.ErrPromptEmpty},
		{name: "empty model", prompt: "Q", count: 1, wantErr: domain.ErrModelEmpty},
		{name: "zero count", prompt: "Q", model: "m", count: 0, wantErr: domain.ErrInvalidCount},
		{name: "negative count", prompt: "Q", model: "m", count: -3, wantErr: domain.ErrInvalidCount},
		{
			name:   "unwritable output",
			prompt: "Q", model: "m", count: 2,
			store: func() ports.ArtifactStore {
				return storage.NewMarkdownStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), testOutputDir)
			},
			wantErr: ErrStorePrepare,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutils.NewMockLLMClient("m")
			var store ports.ArtifactStore
			if tt.store != nil {
				store = tt.store()
			} else {
				store, _ = newMemStore()
			}
			gen := newTestGenerator(t, client, store, MaxConcurrencyLimit)

			results, err := gen.Generate(context.Background(), tt.prompt, tt.model, tt.count, 0.7)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, results)
			assert.Zero(t, client.CallCount(), "nothing is scheduled on setup errors")
		})
	}
}

func TestGenerator_ReportsProgressAndMetrics(t *testing.T) {
	const count = 6
	client := testutils.NewMockLLMClient("m")
	client.Handler = func(_ context.Context, call testutils.Call) (string, error) {
		if call.Seq%3 == 0 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}
	progress := &testutils.RecordingProgress{}
	metrics := newMetricsRecorder()
	store, _ := newMemStore()
	gen := newTestGenerator(t, client, store, 4, WithProgress(progress), WithMetrics(metrics))

	_, err := gen.Generate(context.Background(), "Q", "model-A", count, 0.7)
	require.NoError(t, err)

	assert.True(t, progress.Started)
	assert.True(t, progress.Finished)
	assert.Equal(t, count, progress.Total)
	assert.Equal(t, "model-A", progress.Model)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress.Snapshot(), "one advance per completed task in order, failures included")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 4.0, metrics.counters[MetricGenerationTasks+":success"])
	assert.Equal(t, 2.0, metrics.counters[MetricGenerationTasks+":failure"])
	assert.Equal(t, 1, metrics.latency[MetricGenerationBatch+":failure"])
	assert.Contains(t, metrics.gauges, MetricGenerationRunning)
}

func TestGenerator_CancellationStillFillsEverySlot(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	client.Delay = func(int) time.Duration { return time.Second }
	store, fs := newMemStore()
	gen := newTestGenerator(t, client, store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	results, err := gen.Generate(ctx, "Q", "m", 4, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Failed())
		assert.True(t, strings.HasPrefix(r.Text, domain.ErrorMarker))

		data, err := afero.ReadFile(fs, filepath.Join(testOutputDir, storage.ResponseFileName(r.Index)))
		require.NoError(t, err)
		assert.Contains(t, string(data), r.Text)
	}
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestGenerator_ProgressAdvancesInOrderUnderConcurrency(t *testing.T) {
	const count = 40
	client := testutils.NewMockLLMClient("m")
	client.Delay = func(seq int) time.Duration { return time.Duration((seq*7)%5) * time.Millisecond }
	progress := &testutils.RecordingProgress{}
	store, _ := newMemStore()
	gen := newTestGenerator(t, client, store, 8, WithProgress(progress))

	_, err := gen.Generate(context.Background(), "Q", "m", count, 0.7)
	require.NoError(t, err)

	want := make([]int, count)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, progress.Snapshot())
}
