package main

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
)

// huhConfirm prompts prompt as a yes/no question, the same form widget
// the teacher's own interactive commands use for destructive actions.
func huhConfirm(prompt string, ok *bool) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(ok),
		),
	).Run()
}

// renderMarkdown renders a report (recreate/compact summaries) as
// terminal-friendly markdown, falling back to the raw text if the
// renderer can't be built.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
