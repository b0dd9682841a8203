package components

import (
	"fmt"
	"strings"

	"qflasher/internal/adapter/tui/theme"
	"qflasher/internal/domain"
)

// StepIndicatorModel displays "Step 2 of 5: Downloading" followed by one
// marker per visible step.
type StepIndicatorModel struct {
	Current  domain.Step
	Finished bool // every step done
	width    int
}

// NewStepIndicator creates a step indicator positioned on the first step.
func NewStepIndicator() StepIndicatorModel {
	return StepIndicatorModel{Current: domain.StepChecking}
}

// SetWidth sets the rendering width.
func (m *StepIndicatorModel) SetWidth(w int) {
	m.width = w
}

// Header is the "Step n of 5: Title" line without styling.
func (m StepIndicatorModel) Header() string {
	if m.Finished || m.Current == domain.StepComplete {
		return fmt.Sprintf("Step %d of %d: %s", domain.TotalSteps, domain.TotalSteps, domain.StepComplete.Title())
	}
	return fmt.Sprintf("Step %d of %d: %s", m.Current.Number(), domain.TotalSteps, m.Current.Title())
}

// View renders the header and the step markers.
func (m StepIndicatorModel) View() string {
	var markers []string
	for _, s := range domain.Steps() {
		if s == domain.StepComplete {
			continue
		}
		switch {
		case m.Finished || s < m.Current:
			markers = append(markers, theme.StepDone.Render(theme.Sym.Success+" "+s.Title()))
		case s == m.Current:
			markers = append(markers, theme.StepActive.Render(theme.Sym.Info+" "+s.Title()))
		default:
			markers = append(markers, theme.StepPending.Render(theme.Sym.Pending+" "+s.Title()))
		}
	}

	sep := "  "
	line := strings.Join(markers, sep)
	if m.width > 0 && m.width < 60 {
		// Too narrow for one line.
		line = strings.Join(markers, "\n")
	}
	return theme.StepActive.Render(m.Header()) + "\n" + line
}
