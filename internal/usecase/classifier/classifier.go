// Package classifier turns the flasher tool's human-oriented output lines
// into typed progress events.
package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"qflasher/internal/domain"
)

// WaitingForDeviceMessage replaces the tool's own wording when it starts
// polling for the recovery-mode device.
const WaitingForDeviceMessage = "Connect your device with jumper installed..."

var (
	preparingKeywords  = []string{"checking", "found debian", "image version"}
	downloadKeywords   = []string{"downloading", "download"}
	extractKeywords    = []string{"extracting", "extract"}
	waitingKeywords    = []string{"waiting for edl", "waiting for device"}
	flashingKeywords   = []string{"flashing", "qdl", "flashed", "patches applied"}
	successKeywords    = []string{"partition 0 is now bootable", "successfully"}
	stderrFailureToken = "error"
)

var (
	leadingPercentPattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*%`)
	anyPercentPattern     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	cleanPercentPattern   = regexp.MustCompile(`^\s*(\d+)\s*%`)
	sizePairPattern       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?\s*[KMGT]?B\s*/\s*\d+(?:\.\d+)?\s*[KMGT]?B)`)
)

// Context is the state carried between lines of one attempt.
type Context struct {
	Step domain.Step
}

// Classifier is a stateful line classifier. One instance serves one flash
// attempt; it is not safe for concurrent use.
type Classifier struct {
	ctx Context
}

// New returns a classifier with a fresh context.
func New() *Classifier {
	c := &Classifier{}
	c.Reset()
	return c
}

// Reset prepares the classifier for a new attempt. Bare percentages seen
// before any explicit step keyword are attributed to Downloading.
func (c *Classifier) Reset() {
	c.ctx = Context{Step: domain.StepDownloading}
}

// Context returns the current classifier context.
func (c *Classifier) Context() Context { return c.ctx }

// Classify maps one stdout line to zero or more progress events. Rules are
// evaluated in priority order and the first match wins.
func (c *Classifier) Classify(line string) []domain.ProgressEvent {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	lower := strings.ToLower(trimmed)
	_, hasPercent := ExtractPercentage(trimmed)

	switch {
	case containsAny(lower, preparingKeywords):
		c.ctx.Step = domain.StepDownloading
		return one(domain.StepUpdate(domain.StepDownloading, trimmed))

	case containsAny(lower, downloadKeywords) || (hasPercent && c.ctx.Step == domain.StepDownloading):
		c.ctx.Step = domain.StepDownloading
		return one(domain.StepUpdate(domain.StepDownloading, CleanMessage(trimmed, domain.StepDownloading)))

	case containsAny(lower, extractKeywords):
		c.ctx.Step = domain.StepExtracting
		return one(domain.StepUpdate(domain.StepExtracting, trimmed))

	case containsAny(lower, waitingKeywords):
		c.ctx.Step = domain.StepWaitingForDevice
		return one(domain.StepUpdate(domain.StepWaitingForDevice, WaitingForDeviceMessage))

	case containsAny(lower, flashingKeywords):
		c.ctx.Step = domain.StepFlashing
		return one(domain.StepUpdate(domain.StepFlashing, trimmed))

	case containsAny(lower, successKeywords):
		return one(domain.Success())

	case hasPercent:
		return one(domain.StepUpdate(c.ctx.Step, CleanMessage(trimmed, c.ctx.Step)))
	}
	return nil
}

// ClassifyStderr treats any stderr line mentioning "error" as a terminal
// failure. Everything else on stderr is diagnostic noise.
func (c *Classifier) ClassifyStderr(line string) []domain.ProgressEvent {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if strings.Contains(strings.ToLower(trimmed), stderrFailureToken) {
		return one(domain.Failure(trimmed))
	}
	return nil
}

// ExtractPercentage returns the first percentage in line as a fraction in
// [0, 1]. A percentage at the start of the line wins over one elsewhere.
func ExtractPercentage(line string) (float64, bool) {
	text, ok := percentText(line)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v / 100, true
}

// CleanMessage rewrites progress-bar lines into "<Step>: <n>% (<size pair>)".
// Only a whole-number percentage leading the line counts as a progress bar;
// any other line is returned trimmed and otherwise untouched.
func CleanMessage(line string, step domain.Step) string {
	trimmed := strings.TrimSpace(line)
	pm := cleanPercentPattern.FindStringSubmatch(trimmed)
	if pm == nil {
		return trimmed
	}
	pct := pm[1]
	if m := sizePairPattern.FindStringSubmatch(trimmed); m != nil {
		return step.Title() + ": " + pct + "% (" + strings.TrimSpace(m[1]) + ")"
	}
	return step.Title() + ": " + pct + "%"
}

func percentText(line string) (string, bool) {
	if m := leadingPercentPattern.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := anyPercentPattern.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func one(evt domain.ProgressEvent) []domain.ProgressEvent {
	return []domain.ProgressEvent{evt}
}
