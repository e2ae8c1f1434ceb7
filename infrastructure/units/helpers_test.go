package units

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/ahrav/go-bestof/infrastructure/storage"
	"github.com/ahrav/go-bestof/internal/ports"
)

const testOutputDir = "outputs"

func newMemStore() (*storage.MarkdownStore, afero.Fs) {
	fs := afero.NewMemMapFs()
	return storage.NewMarkdownStore(fs, testOutputDir), fs
}

var errDiskFull = errors.New("disk full")

// failingStore wraps an ArtifactStore and fails selected operations.
type failingStore struct {
	ports.ArtifactStore
	failIndex   int
	failRanking bool
}

func (s *failingStore) SaveResponse(ctx context.Context, index int, prompt, text string) (string, error) {
	if index == s.failIndex {
		return "", ports.NewStorageError("response", "write", errDiskFull)
	}
	return s.ArtifactStore.SaveResponse(ctx, index, prompt, text)
}

func (s *failingStore) SaveRanking(ctx context.Context, topK int, prompt, text string) (string, error) {
	if s.failRanking {
		return "", ports.NewStorageError("ranking", "write", errDiskFull)
	}
	return s.ArtifactStore.SaveRanking(ctx, topK, prompt, text)
}

// metricsRecorder counts metric calls by name.
type metricsRecorder struct {
	mu       sync.Mutex
	counters map[string]float64
	latency  map[string]int
	gauges   map[string]float64
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{
		counters: map[string]float64{},
		latency:  map[string]int{},
		gauges:   map[string]float64{},
	}
}

func (m *metricsRecorder) RecordLatency(op string, _ time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency[op+":"+labels["status"]]++
}

func (m *metricsRecorder) RecordCounter(name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name+":"+labels["status"]] += v
}

func (m *metricsRecorder) RecordGauge(name string, v float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = v
}

func (m *metricsRecorder) RecordHistogram(string, float64, map[string]string) {}
