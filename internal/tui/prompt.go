package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user aborts an interactive step.
var ErrCancelled = errors.New("cancelled by user")

// PromptModel asks the user for the question to sample.
type PromptModel struct {
	input     textinput.Model
	question  string
	cancelled bool
	err       string
}

// NewPromptModel creates a focused question prompt.
func NewPromptModel() PromptModel {
	ti := textinput.New()
	ti.Placeholder = "What would you like to ask?"
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Width = previewWidth
	ti.Focus()
	return PromptModel{input: ti}
}

// Init implements tea.Model.
func (m PromptModel) Init() tea.Cmd { return textinput.Blink }

// Update implements tea.Model.
func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				m.err = "The question cannot be empty."
				return m, nil
			}
			m.question = q
			return m, tea.Quit
		}
	}

	m.err = ""
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m PromptModel) View() string {
	if m.question != "" || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptStyle.Render("Enter your question/prompt"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err))
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("enter to submit · esc to quit"))
	b.WriteString("\n")
	return b.String()
}

// Question returns the submitted question, empty until Enter is pressed.
func (m PromptModel) Question() string { return m.question }

// Cancelled reports whether the user quit without submitting.
func (m PromptModel) Cancelled() bool { return m.cancelled }

// AskQuestion runs the prompt until the user submits a non-empty question or
// quits, in which case ErrCancelled is returned.
func AskQuestion(opts ...tea.ProgramOption) (string, error) {
	final, err := tea.NewProgram(NewPromptModel(), opts...).Run()
	if err != nil {
		return "", fmt.Errorf("question prompt failed: %w", err)
	}
	m, ok := final.(PromptModel)
	if !ok || m.Cancelled() || m.Question() == "" {
		return "", ErrCancelled
	}
	return m.Question(), nil
}
