package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/mixdeck-io/mixdeck/internal/models"
)

// Adaptive colors for CLI output.
var (
	colorWhite  = lipgloss.AdaptiveColor{Light: "0", Dark: "15"}
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}
)

// Semantic styles for CLI output.
var (
	styleBrand   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleVersion = lipgloss.NewStyle().Foreground(colorGreen)
	styleLabel   = lipgloss.NewStyle().Foreground(colorDim)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	styleHint    = lipgloss.NewStyle().Foreground(colorDim)
)

// Link state badge styles.
var (
	badgeConnected  = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	badgeConnecting = lipgloss.NewStyle().Foreground(colorYellow)
	badgeDown       = lipgloss.NewStyle().Foreground(colorRed)
)

// stdoutIsTerminal reports whether styled output makes sense.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// printer renders with styles only when writing to a terminal.
type printer struct {
	styled bool
}

func (p printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

// swatch renders a packed color as a block of that color followed by its hex.
func (p printer) swatch(c uint16) string {
	hex := models.PackedColor(c).Hex()
	if !p.styled {
		return hex
	}
	block := lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render("    ")
	return block + " " + hex
}

// badge styles a link state name.
func (p printer) badge(state string) string {
	switch state {
	case "connected", "transferring":
		return p.render(badgeConnected, state)
	case "connecting":
		return p.render(badgeConnecting, state)
	default:
		return p.render(badgeDown, state)
	}
}
