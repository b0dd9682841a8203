// Package stepmodel maps workflow steps and intra-step fractions to an
// overall progress value in [0, 1].
package stepmodel

import (
	"qflasher/internal/domain"
	"qflasher/internal/usecase/classifier"
)

type band struct {
	floor, width float64
}

// Steps with zero width are fixed points that ignore the fraction.
var bands = map[domain.Step]band{
	domain.StepChecking:         {floor: 0.02},
	domain.StepDownloading:      {floor: 0.05, width: 0.40},
	domain.StepExtracting:       {floor: 0.45, width: 0.10},
	domain.StepWaitingForDevice: {floor: 0.55},
	domain.StepFlashing:         {floor: 0.55, width: 0.40},
	domain.StepComplete:         {floor: 1.0},
}

// Overall returns the progress for step. With a known fraction the value is
// interpolated across the step's band. Without one, prev is lifted to the
// band's floor and otherwise kept, so a line that maps back to an earlier
// step never pulls the bar down.
func Overall(step domain.Step, fraction *float64, prev float64) float64 {
	b, ok := bands[step]
	if !ok {
		return prev
	}
	if b.width == 0 {
		return b.floor
	}
	if fraction != nil {
		return b.floor + clamp01(*fraction)*b.width
	}
	return max(prev, b.floor)
}

// Fraction re-extracts a percentage from an already cleaned message.
func Fraction(message string) *float64 {
	f, ok := classifier.ExtractPercentage(message)
	if !ok {
		return nil
	}
	return &f
}

// ForEvent computes the progress that follows applying evt to prev.
func ForEvent(evt domain.ProgressEvent, prev float64) float64 {
	switch evt.Kind {
	case domain.ProgressSuccess:
		return 1.0
	case domain.ProgressFailure:
		return prev
	default:
		return Overall(evt.Step, Fraction(evt.Message), prev)
	}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
