package components

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"qflasher/internal/domain"
)

func TestStepIndicatorHeader(t *testing.T) {
	si := NewStepIndicator()
	assert.Equal(t, "Step 1 of 5: Checking", si.Header())

	si.Current = domain.StepWaitingForDevice
	assert.Equal(t, "Step 4 of 5: Waiting for Device", si.Header())

	si.Current = domain.StepComplete
	assert.Equal(t, "Step 5 of 5: Complete", si.Header())
}

func TestStepIndicatorViewListsVisibleSteps(t *testing.T) {
	si := NewStepIndicator()
	si.Current = domain.StepExtracting
	si.SetWidth(120)
	out := si.View()

	for _, title := range []string{"Checking", "Downloading", "Extracting", "Waiting for Device", "Flashing"} {
		assert.Contains(t, out, title)
	}
	assert.Contains(t, out, "Step 3 of 5")
}

func TestStatusBarView(t *testing.T) {
	sb := NewStatusBar()
	sb.SetWidth(100)
	sb.Hints = []KeyHint{{Key: "Enter", Desc: "Continue"}, {Key: "q", Desc: "Quit"}}
	sb.Version = "1.2.0"

	out := sb.View()
	assert.Contains(t, out, "Continue")
	assert.Contains(t, out, "no EDL device")
	assert.Contains(t, out, "image 1.2.0")
	assert.NotContains(t, out, "\n", "the bar fits on one line")
	assert.Equal(t, 100, lipgloss.Width(out))

	sb.DevicePresent = true
	sb.Extra = "Cannot cancel now"
	out = sb.View()
	assert.NotContains(t, out, "no EDL device")
	assert.Contains(t, out, "Cannot cancel now")
}
