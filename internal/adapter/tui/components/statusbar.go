// Package components holds reusable pieces of the flasher screens.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"qflasher/internal/adapter/tui/theme"
)

// KeyHint represents a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "Enter"
	Desc string // e.g. "Continue"
}

// StatusBarModel renders a bottom status bar with keybinding hints on the
// left and device/version status on the right.
type StatusBarModel struct {
	Hints         []KeyHint
	DevicePresent bool
	Version       string // target image, e.g. "latest" or "1.2.0"
	Extra         string // transient notice, e.g. "Cannot cancel now"
	width         int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	device := theme.TextMuted.Render(theme.Sym.Pending + " no EDL device")
	if m.DevicePresent {
		device = theme.TextSuccess.Render(theme.Sym.Info + " EDL device")
	}
	parts := []string{device}
	if m.Version != "" {
		parts = append(parts, theme.TextMuted.Render("image "+m.Version))
	}
	right := strings.Join(parts, " "+theme.Sym.Bullet+" ")

	if m.Extra != "" {
		right = theme.TextWarning.Render(m.Extra) + "  " + right
	}

	// Width includes the bar's padding; the text has to fit inside it.
	inner := m.width - theme.StatusBar.GetHorizontalFrameSize()
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	bar := left + strings.Repeat(" ", gap) + right
	return theme.StatusBar.Width(m.width).Render(bar)
}
