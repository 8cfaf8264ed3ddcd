package ui

import "github.com/charmbracelet/lipgloss"

// Palette used across table rendering and prompts. Kept adaptive so
// the same styles read well on light and dark terminal backgrounds.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#7AA2F7"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#E0AF68"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#9ECE6A"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#565F89"}
)
