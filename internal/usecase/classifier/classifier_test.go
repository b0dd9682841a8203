package classifier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qflasher/internal/domain"
)

func TestExtractPercentage(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"24% |████", 0.24, true},
		{"  7 % done", 0.07, true},
		{"100%", 1.0, true},
		{"progress 12.5% of image", 0.125, true},
		{"45% |████      | 900MB/2.0GB", 0.45, true},
		{"no numbers here", 0, false},
		{"size 900MB", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ExtractPercentage(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestExtractPercentageLeadingInteger(t *testing.T) {
	for n := 0; n <= 100; n++ {
		line := fmt.Sprintf("%d%% |██ trailing 99%%", n)
		got, ok := ExtractPercentage(line)
		require.True(t, ok, line)
		assert.InDelta(t, float64(n)/100, got, 1e-9, line)
	}
}

func TestCleanMessage(t *testing.T) {
	assert.Equal(t, "Downloading: 45% (900MB/2.0GB)",
		CleanMessage("45% |████      | 900MB/2.0GB", domain.StepDownloading))
	assert.Equal(t, "Flashing: 30%", CleanMessage("  30% |███", domain.StepFlashing))
	assert.Equal(t, "Downloading: 10% (1.5 gb / 3 GB)",
		CleanMessage("10% 1.5 gb / 3 GB", domain.StepDownloading))
	assert.Equal(t, "Extracting archive", CleanMessage("  Extracting archive  ", domain.StepExtracting))
}

func TestCleanMessageOnlyRewritesLeadingPercent(t *testing.T) {
	assert.Equal(t, "Downloading image 45% 900MB/2.0GB",
		CleanMessage("Downloading image 45% 900MB/2.0GB", domain.StepDownloading))
	assert.Equal(t, "12.5% done", CleanMessage(" 12.5% done ", domain.StepFlashing))

	// the classifier still reads progress from the untouched text
	c := New()
	evts := c.Classify("Downloading image 45% 900MB/2.0GB")
	require.Len(t, evts, 1)
	assert.Equal(t, "Downloading image 45% 900MB/2.0GB", evts[0].Message)
	got, ok := ExtractPercentage(evts[0].Message)
	require.True(t, ok)
	assert.InDelta(t, 0.45, got, 1e-9)
}

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		name     string
		start    domain.Step
		line     string
		wantKind domain.ProgressKind
		wantStep domain.Step
		wantMsg  string
		wantCtx  domain.Step
	}{
		{"checking maps to downloading", domain.StepFlashing, "Checking image version...", domain.ProgressStep, domain.StepDownloading, "Checking image version...", domain.StepDownloading},
		{"found debian", domain.StepDownloading, "Found Debian image 1.2.0", domain.ProgressStep, domain.StepDownloading, "Found Debian image 1.2.0", domain.StepDownloading},
		{"download keyword", domain.StepExtracting, "Download started", domain.ProgressStep, domain.StepDownloading, "Download started", domain.StepDownloading},
		{"bare percent while downloading", domain.StepDownloading, "60% |██████", domain.ProgressStep, domain.StepDownloading, "Downloading: 60%", domain.StepDownloading},
		{"extract", domain.StepDownloading, "Extracting archive", domain.ProgressStep, domain.StepExtracting, "Extracting archive", domain.StepExtracting},
		{"waiting for edl", domain.StepExtracting, "Waiting for EDL device...", domain.ProgressStep, domain.StepWaitingForDevice, WaitingForDeviceMessage, domain.StepWaitingForDevice},
		{"waiting for device", domain.StepExtracting, "waiting for device", domain.ProgressStep, domain.StepWaitingForDevice, WaitingForDeviceMessage, domain.StepWaitingForDevice},
		{"qdl", domain.StepWaitingForDevice, "running qdl", domain.ProgressStep, domain.StepFlashing, "running qdl", domain.StepFlashing},
		{"patches applied", domain.StepWaitingForDevice, "patches applied", domain.ProgressStep, domain.StepFlashing, "patches applied", domain.StepFlashing},
		{"bare percent keeps flashing", domain.StepFlashing, "30% |███", domain.ProgressStep, domain.StepFlashing, "Flashing: 30%", domain.StepFlashing},
		{"bare percent keeps extracting", domain.StepExtracting, "  80 %", domain.ProgressStep, domain.StepExtracting, "Extracting: 80%", domain.StepExtracting},
		{"success phrase", domain.StepFlashing, "Partition 0 is now bootable", domain.ProgressSuccess, domain.StepComplete, "Flash completed successfully!", domain.StepFlashing},
		{"completed successfully", domain.StepFlashing, "Completed successfully", domain.ProgressSuccess, domain.StepComplete, "Flash completed successfully!", domain.StepFlashing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.ctx.Step = tt.start
			evts := c.Classify(tt.line)
			require.Len(t, evts, 1)
			assert.Equal(t, tt.wantKind, evts[0].Kind)
			assert.Equal(t, tt.wantStep, evts[0].Step)
			assert.Equal(t, tt.wantMsg, evts[0].Message)
			assert.Equal(t, tt.wantCtx, c.Context().Step)
		})
	}
}

func TestClassifyIgnoresNoise(t *testing.T) {
	c := New()
	assert.Empty(t, c.Classify(""))
	assert.Empty(t, c.Classify("   "))
	assert.Empty(t, c.Classify("Using cache dir /tmp/flasher"))
	assert.Equal(t, domain.StepDownloading, c.Context().Step)
}

func TestClassifyStderr(t *testing.T) {
	c := New()
	evts := c.ClassifyStderr("  ERROR: device not found \n")
	require.Len(t, evts, 1)
	assert.Equal(t, domain.ProgressFailure, evts[0].Kind)
	assert.Equal(t, "ERROR: device not found", evts[0].Message)

	assert.Empty(t, c.ClassifyStderr("warning: slow usb link"))
	assert.Empty(t, c.ClassifyStderr(""))
}

func TestResetRestoresDownloading(t *testing.T) {
	c := New()
	c.Classify("flashing via qdl")
	require.Equal(t, domain.StepFlashing, c.Context().Step)
	c.Reset()
	assert.Equal(t, domain.StepDownloading, c.Context().Step)
}

func TestEndToEndScenario(t *testing.T) {
	lines := []string{
		"Checking image version...",
		"Downloading firmware",
		"45% |████      | 900MB/2.0GB",
		"Extracting archive",
		"Waiting for EDL...",
		"flashing via qdl",
		"Partition 0 is now bootable",
	}

	c := New()
	var got []domain.ProgressEvent
	for _, l := range lines {
		got = append(got, c.Classify(l)...)
	}

	require.Len(t, got, 7)
	wantSteps := []domain.Step{
		domain.StepDownloading, domain.StepDownloading, domain.StepDownloading,
		domain.StepExtracting, domain.StepWaitingForDevice, domain.StepFlashing,
	}
	for i, step := range wantSteps {
		assert.Equal(t, domain.ProgressStep, got[i].Kind, "event %d", i)
		assert.Equal(t, step, got[i].Step, "event %d", i)
	}
	assert.Equal(t, "Downloading: 45% (900MB/2.0GB)", got[2].Message)
	assert.Equal(t, domain.ProgressSuccess, got[6].Kind)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Step, got[i].Step, "steps must not regress at %d", i)
	}
}
