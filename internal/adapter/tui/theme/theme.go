// Package theme holds the colors, glyphs and lipgloss styles of the flasher
// TUI. Colors are adaptive so both light and dark terminals stay legible;
// lipgloss drops them entirely when NO_COLOR is set.
package theme

import "github.com/charmbracelet/lipgloss"

// Palette. Teal is the board vendor's brand color and marks anything the
// user should act on.
var (
	ColorTeal  = lipgloss.AdaptiveColor{Light: "#00686b", Dark: "#00c2c7"}
	ColorGood  = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#81c784"}
	ColorBad   = lipgloss.AdaptiveColor{Light: "#b71c1c", Dark: "#e57373"}
	ColorCare  = lipgloss.AdaptiveColor{Light: "#bf5700", Dark: "#ffb74d"}
	ColorInfo  = lipgloss.AdaptiveColor{Light: "#01579b", Dark: "#81d4fa"}
	ColorQuiet = lipgloss.AdaptiveColor{Light: "#6d6d6d", Dark: "#a0a0a0"}
	ColorFrame = lipgloss.AdaptiveColor{Light: "#c4c4c4", Dark: "#5a5a5a"}
	ColorShade = lipgloss.AdaptiveColor{Light: "#eeeeee", Dark: "#262626"}

	// bubbles/progress takes plain hex strings for its gradient.
	ColorProgressStart = "#00979d"
	ColorProgressEnd   = "#7cb342"
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorBad).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorCare).Bold(true)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorTeal)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorQuiet)
)

func frame(border lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 2)
}

// Screen frames; ScreenDanger is used while interrupting would brick the board.
var (
	Screen       = frame(ColorFrame)
	ScreenDanger = frame(ColorCare)

	Title    = lipgloss.NewStyle().Foreground(ColorTeal).Bold(true).MarginBottom(1)
	Subtitle = lipgloss.NewStyle().Foreground(ColorQuiet)
	Callout  = lipgloss.NewStyle().Foreground(ColorCare).Bold(true).MarginTop(1)

	ErrorDetails = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorBad).
			PaddingLeft(1)
)

var (
	StatusBar = lipgloss.NewStyle().Foreground(ColorQuiet).Background(ColorShade).Padding(0, 1)
	StatusKey = lipgloss.NewStyle().Foreground(ColorTeal).Bold(true)

	StepActive  = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
	StepDone    = lipgloss.NewStyle().Foreground(ColorGood)
	StepPending = lipgloss.NewStyle().Foreground(ColorQuiet)

	InstructionNumber    = lipgloss.NewStyle().Foreground(ColorTeal).Bold(true)
	InstructionHighlight = lipgloss.NewStyle().Foreground(ColorCare).Bold(true)
)

// MaxContentWidth caps the width of prose so long terminal lines stay readable.
const MaxContentWidth = 80

// Clamp returns v limited to [lo, hi].
func Clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
