package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ahrav/go-bestof/internal/application"
	"github.com/ahrav/go-bestof/internal/ports"
)

const (
	barPadding  = 2
	maxBarWidth = 60
)

// Messages sent by ProgramReporter into a running program.
type (
	generationStartedMsg struct {
		total int
		model string
	}
	generationAdvancedMsg struct{ done, total int }
	generationFinishedMsg struct{}
	phaseMsg              struct {
		phase application.Phase
		model string
	}
	// runFinishedMsg carries the pipeline outcome and ends the program.
	runFinishedMsg struct {
		report *application.RunReport
		err    error
	}
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramReporter forwards pipeline events to a bubbletea program.
// It implements ports.ProgressReporter and its Phase method is an
// application.PhaseObserver.
type ProgramReporter struct {
	sender Sender
}

var _ ports.ProgressReporter = (*ProgramReporter)(nil)

// NewProgramReporter creates a ProgramReporter sending to s.
func NewProgramReporter(s Sender) *ProgramReporter {
	return &ProgramReporter{sender: s}
}

// Start implements ports.ProgressReporter.
func (r *ProgramReporter) Start(total int, model string) {
	r.sender.Send(generationStartedMsg{total: total, model: model})
}

// Advance implements ports.ProgressReporter.
func (r *ProgramReporter) Advance(done, total int) {
	r.sender.Send(generationAdvancedMsg{done: done, total: total})
}

// Finish implements ports.ProgressReporter.
func (r *ProgramReporter) Finish() {
	r.sender.Send(generationFinishedMsg{})
}

// Phase reports a pipeline phase change.
func (r *ProgramReporter) Phase(phase application.Phase, model string) {
	r.sender.Send(phaseMsg{phase: phase, model: model})
}

// RunModel shows a progress bar while answers are generated and a spinner
// while the judge ranks them. It quits when the run finishes or the user
// presses ctrl+c, which cancels the run.
type RunModel struct {
	spinner spinner.Model
	bar     progress.Model
	cancel  context.CancelFunc

	phase application.Phase
	model string
	done  int
	total int

	finished  bool
	cancelled bool
	report    *application.RunReport
	err       error
}

// NewRunModel creates a RunModel. cancel is invoked when the user aborts.
func NewRunModel(cancel context.CancelFunc) RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = successStyle

	if cancel == nil {
		cancel = func() {}
	}
	return RunModel{
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m RunModel) Init() tea.Cmd { return m.spinner.Tick }

// Update implements tea.Model.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-barPadding*2, maxBarWidth)
		return m, nil

	case generationStartedMsg:
		m.phase = application.PhaseGenerating
		m.model = msg.model
		m.total = msg.total
		m.done = 0
		return m, nil

	case generationAdvancedMsg:
		m.done = max(m.done, msg.done)
		if msg.total > 0 {
			m.total = msg.total
			return m, m.bar.SetPercent(float64(m.done) / float64(msg.total))
		}
		return m, nil

	case generationFinishedMsg:
		return m, m.bar.SetPercent(1)

	case phaseMsg:
		m.phase = msg.phase
		if msg.model != "" {
			m.model = msg.model
		}
		return m, nil

	case runFinishedMsg:
		m.finished = true
		m.report = msg.report
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		updated, cmd := m.bar.Update(msg)
		if bar, ok := updated.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m RunModel) View() string {
	if m.finished {
		return ""
	}

	var b strings.Builder
	switch m.phase {
	case application.PhaseGenerating:
		fmt.Fprintf(&b, "%s Generating %d responses using %s...\n", m.spinner.View(), m.total, valueStyle.Render(m.model))
		fmt.Fprintf(&b, "%s %d/%d\n", m.bar.View(), m.done, m.total)
	case application.PhaseRanking:
		fmt.Fprintf(&b, "%s Ranking responses using %s...\n", m.spinner.View(), valueStyle.Render(m.model))
	default:
		fmt.Fprintf(&b, "%s Starting...\n", m.spinner.View())
	}
	if m.cancelled {
		b.WriteString(warnStyle.Render("Cancelling, waiting for in-flight requests..."))
		b.WriteString("\n")
	}
	return b.String()
}

// Done reports the generation progress as (done, total).
func (m RunModel) Done() (int, int) { return m.done, m.total }

// Phase returns the phase currently displayed.
func (m RunModel) Phase() application.Phase { return m.phase }

// RunFunc executes a pipeline run, reporting through reporter.
type RunFunc func(ctx context.Context, reporter *ProgramReporter) (*application.RunReport, error)

// RunWithProgress executes fn while displaying its progress. ctrl+c cancels
// the context handed to fn. RunWithProgress always waits for fn to return
// and hands back its result.
func RunWithProgress(ctx context.Context, fn RunFunc, opts ...tea.ProgramOption) (*application.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(NewRunModel(cancel), opts...)
	reporter := NewProgramReporter(program)

	outcome := make(chan runFinishedMsg, 1)
	go func() {
		report, err := fn(ctx, reporter)
		msg := runFinishedMsg{report: report, err: err}
		outcome <- msg
		program.Send(msg)
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-outcome
		return nil, fmt.Errorf("progress display failed: %w", err)
	}

	res := <-outcome
	return res.report, res.err
}
