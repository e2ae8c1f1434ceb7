// Package tui renders the interactive parts of a best-of-N run: the question
// prompt, the generation progress bar, the ranking spinner and the final
// preview. It uses bubbletea and follows The Elm Architecture: state lives in
// a model, Update turns messages into new state, View renders it.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ahrav/go-bestof/internal/application"
)

const previewWidth = 80

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4CAF50")).
			Padding(0, 1)
	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(previewWidth)
	headingStyle = lipgloss.NewStyle().Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00B7C3"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	ruleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CCCCCC"))
)

// RenderTitle renders the application banner.
func RenderTitle() string {
	return titleStyle.Render("Best-of-N Sampler & Ranker")
}

// RenderSettings renders the run configuration panel shown before a run.
func RenderSettings(cfg application.Config) string {
	rows := []struct{ label, value string }{
		{"Generator", cfg.Generator.Model},
		{"Judge", cfg.Judge.Model},
		{"Requests", fmt.Sprint(cfg.Generator.Count)},
		{"Top Answers", fmt.Sprint(cfg.Judge.TopK)},
		{"Temperature", fmt.Sprintf("%.2f", cfg.Generator.Temperature)},
		{"Output", cfg.Output.Dir},
	}

	lines := []string{headingStyle.Render("Configuration:")}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s: %s", r.label, valueStyle.Render(r.value)))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// RenderRule renders a section divider labelled title.
func RenderRule(title string) string {
	bar := strings.Repeat("─", 3)
	return ruleStyle.Render(bar + " " + title + " " + bar)
}

// RenderReport renders the outcome of a run: the generation summary, where
// the ranking was saved and a preview of the judge's evaluation.
func RenderReport(report *application.RunReport) string {
	if report == nil || len(report.Results) == 0 {
		return errorStyle.Render("No responses were generated.")
	}

	s := report.Summary
	var lines []string
	if s.AllSucceeded() {
		lines = append(lines, successStyle.Render(fmt.Sprintf("✓ Generated %d responses.", s.Total)))
	} else {
		lines = append(lines, warnStyle.Render(
			fmt.Sprintf("! Generated %d responses, %d failed.", s.Total, s.Failed)))
	}
	if s.Succeeded > 1 {
		lines = append(lines, hintStyle.Render(fmt.Sprintf(
			"Mean similarity %.2f, %d near-duplicate(s).", s.MeanSimilarity, s.NearDuplicates)))
	}

	lines = append(lines, "", RenderRule("Ranking"))
	if report.Ranking.Failed() {
		lines = append(lines, errorStyle.Render(report.Ranking.Text))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines,
		headingStyle.Render("Ranking Complete!"),
		fmt.Sprintf("Results saved to %s", lipgloss.NewStyle().Underline(true).Render(report.RankingPath)),
		"",
		RenderRule("Preview"),
		previewStyle.Render(strings.TrimSpace(report.Ranking.Text)),
	)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
