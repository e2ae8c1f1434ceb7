package testutils

import (
	"sync"

	"github.com/ahrav/go-bestof/internal/ports"
)

// RecordingProgress is a ports.ProgressReporter that keeps every event.
type RecordingProgress struct {
	mu       sync.Mutex
	Total    int
	Model    string
	Advances []int
	Started  bool
	Finished bool
}

// Start implements ports.ProgressReporter.
func (p *RecordingProgress) Start(total int, model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Started = true
	p.Total = total
	p.Model = model
}

// Advance implements ports.ProgressReporter.
func (p *RecordingProgress) Advance(done, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Advances = append(p.Advances, done)
}

// Finish implements ports.ProgressReporter.
func (p *RecordingProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Finished = true
}

// Snapshot returns a copy of the recorded advance values.
func (p *RecordingProgress) Snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.Advances...)
}

var _ ports.ProgressReporter = (*RecordingProgress)(nil)
