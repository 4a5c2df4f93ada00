package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Simple Palette inspired by standard terminal dark themes
var (
	// Colors
	ColorPrimary   = lipgloss.Color("255") // White
	ColorSecondary = lipgloss.Color("240") // Dark Gray
	ColorAccent    = lipgloss.Color("39")  // Blue / Cyan
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorError     = lipgloss.Color("196") // Red
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorDim       = lipgloss.Color("240") // Dimmed text
	ColorThought   = lipgloss.Color("245")

	// Backgrounds (only used for highlighting lines or headers)
	ColorHighlightBg = lipgloss.Color("236") // Very dark gray background for active items
)

// Shared styles - minimal and clean
var (
	// Standard Text
	StyleNormal = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleDimmed = lipgloss.NewStyle().Foreground(ColorDim)
	StyleBold   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	// Status & Feedback
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)

	// UI Elements
	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSecondary)

	StyleTitle  = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).MarginBottom(1)
	StylePrompt = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

	// Transcript
	StyleUser    = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	StyleThought = lipgloss.NewStyle().Foreground(ColorThought).Italic(true)
	StyleTool    = lipgloss.NewStyle().Foreground(ColorAccent)
	StyleSQL     = lipgloss.NewStyle().Foreground(ColorWarning)

	// Prompt boxes (todo, question, confirm)
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(ColorSecondary).
			Padding(0, 1)

	StyleBoxActive = StyleBox.BorderForeground(ColorAccent)

	// List Item (Active)
	StyleListItemActive = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true).
				Background(ColorHighlightBg)

	// Form Focus
	StyleInputFocused = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true)

	// Bottom Bar
	StyleStatusBar = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	// Help Keys
	StyleHelpKey = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleHelpDesc = lipgloss.NewStyle().
			Foreground(ColorDim)
)
