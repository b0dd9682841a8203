package domain

import "fmt"

// VersionInfo describes one firmware image published by the flasher tool.
type VersionInfo struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
}

// VersionList is the decoded output of `list --format json`.
type VersionList struct {
	Latest   *VersionInfo  `json:"latest"`
	Releases []VersionInfo `json:"releases"`
}

// Step is one ordered phase of the flashing workflow.
type Step int

const (
	StepChecking Step = iota + 1
	StepDownloading
	StepExtracting
	StepWaitingForDevice
	StepFlashing
	StepComplete
)

// TotalSteps is the number of steps shown to the user, not counting Complete.
const TotalSteps = 5

// Steps returns every step in workflow order.
func Steps() []Step {
	return []Step{StepChecking, StepDownloading, StepExtracting, StepWaitingForDevice, StepFlashing, StepComplete}
}

// Title is the human label for the step.
func (s Step) Title() string {
	switch s {
	case StepChecking:
		return "Checking"
	case StepDownloading:
		return "Downloading"
	case StepExtracting:
		return "Extracting"
	case StepWaitingForDevice:
		return "Waiting for Device"
	case StepFlashing:
		return "Flashing"
	case StepComplete:
		return "Complete"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

func (s Step) String() string { return s.Title() }

// Number is the 1-based position used for "Step n/5" labels.
func (s Step) Number() int { return int(s) }

// CancellationSafe reports whether aborting during s leaves the device
// recoverable. Nothing is written to the device before Flashing.
func (s Step) CancellationSafe() bool {
	switch s {
	case StepChecking, StepDownloading, StepExtracting, StepWaitingForDevice:
		return true
	default:
		return false
	}
}

// ProgressKind tags a ProgressEvent.
type ProgressKind int

const (
	ProgressStep ProgressKind = iota
	ProgressSuccess
	ProgressFailure
)

func (k ProgressKind) String() string {
	switch k {
	case ProgressStep:
		return "step"
	case ProgressSuccess:
		return "success"
	case ProgressFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ProgressEvent is one typed progress report derived from flasher output.
type ProgressEvent struct {
	Kind    ProgressKind
	Step    Step
	Message string
}

// StepUpdate reports that the tool is in step with a status message.
func StepUpdate(step Step, message string) ProgressEvent {
	return ProgressEvent{Kind: ProgressStep, Step: step, Message: message}
}

// Success reports that the image was written and the device is bootable.
func Success() ProgressEvent {
	return ProgressEvent{Kind: ProgressSuccess, Step: StepComplete, Message: "Flash completed successfully!"}
}

// Failure reports a terminal failure with the best available message.
func Failure(message string) ProgressEvent {
	return ProgressEvent{Kind: ProgressFailure, Message: message}
}

// Terminal reports whether the event ends an attempt.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == ProgressSuccess || e.Kind == ProgressFailure
}

// StateKind tags a SessionState.
type StateKind int

const (
	StateIdle StateKind = iota
	StateAwaitingJumper
	StateAwaitingDevice
	StateInProgress
	StateComplete
	StateFailed
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateAwaitingJumper:
		return "awaiting_jumper"
	case StateAwaitingDevice:
		return "awaiting_device"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionState is the presentation-facing state of a flash session.
// Step, Message and Percent are meaningful for InProgress; Message carries
// the failure text for Failed.
type SessionState struct {
	Kind    StateKind `json:"kind"`
	Step    Step      `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	Percent float64   `json:"percent"`
}

// Snapshot is what the session publishes after every transition.
type Snapshot struct {
	Seq              uint64       `json:"seq"`
	State            SessionState `json:"state"`
	AttemptID        string       `json:"attempt_id,omitempty"`
	CancellationSafe bool         `json:"cancellation_safe"`
	DevicePresent    bool         `json:"device_present"`
	LatestVersion    string       `json:"latest_version,omitempty"`
	TargetVersion    string       `json:"target_version"`
}
