package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/ahrav/go-bestof/internal/application"
	"github.com/ahrav/go-bestof/internal/tui"
)

// lineProgress prints one line per event for non-interactive runs.
type lineProgress struct {
	mu   sync.Mutex
	w    io.Writer
	done int
}

func newLineProgress(w io.Writer) *lineProgress { return &lineProgress{w: w} }

func (p *lineProgress) Start(total int, model string) {
	p.mu.Lock()
	p.done = 0
	p.mu.Unlock()
	p.printf("Generating %d responses using %s...\n", total, model)
}

// Advance prints only when done moves forward.
func (p *lineProgress) Advance(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if done <= p.done {
		return
	}
	p.done = done
	fmt.Fprintf(p.w, "[%d/%d] response complete\n", done, total)
}

func (p *lineProgress) Finish() {}

func (p *lineProgress) Phase(phase application.Phase, model string) {
	switch phase {
	case application.PhaseGenerating:
		p.printf("%s\n", tui.RenderRule("Generation Phase"))
	case application.PhaseRanking:
		p.printf("%s\nRanking responses using %s...\n", tui.RenderRule("Ranking Phase"), model)
	}
}

func (p *lineProgress) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}
