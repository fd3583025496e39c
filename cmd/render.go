package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jaxxstorm/verbump"
)

// Styles holds the terminal styling of a rendered decision.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Label   lipgloss.Style
	Subtle  lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Label:   lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// renderDecision renders a decision for a human reading the terminal.
func renderDecision(d verbump.Decision, s Styles) string {
	var b strings.Builder

	switch {
	case d.ActionRequired:
		b.WriteString(s.Error.Render("Action required") + "\n")
	case !d.Success:
		b.WriteString(s.Error.Render("Version decision failed") + "\n")
	default:
		b.WriteString(s.Title.Render("Next version ") + s.Success.Render(d.NewVersion) + "\n")
	}

	field := func(label, value string) {
		if value == "" {
			value = s.Subtle.Render("-")
		}
		b.WriteString(s.Label.Render(label) + value + "\n")
	}
	field("branch", d.BranchName)
	field("current version", d.CurrentVersion)
	field("last tag", d.LastTag)
	if d.Success {
		field("bump", d.BumpCategory.String())
		field("action", string(d.Action))
		if d.IsFirstRelease {
			field("first release", "yes")
		}
	}

	for _, w := range d.Warnings {
		b.WriteString(s.Warning.Render("warning: "+w) + "\n")
	}
	if d.ErrorMessage != "" {
		b.WriteString("\n" + s.Error.Render(fmt.Sprintf("error (%s): ", d.ErrorKind)) + d.ErrorMessage + "\n")
	}
	if d.ActionInstructions != "" {
		b.WriteString("\n" + d.ActionInstructions + "\n")
	}
	return b.String()
}
