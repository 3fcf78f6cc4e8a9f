package main

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))
	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5F87"))
	bodyStyle = lipgloss.NewStyle().
			PaddingLeft(1)
)

func renderCheck(pass bool, report string, plain bool) string {
	if plain {
		return report
	}
	header, rest, _ := strings.Cut(report, "\n")
	style := passStyle
	if !pass {
		style = failStyle
	}
	return style.Render(header) + "\n" + bodyStyle.Render(rest) + "\n"
}

// renderVerdict formats the model's markdown answer for the terminal.
func renderVerdict(text string, plain bool) string {
	if plain {
		return text + "\n"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}
