package flash

import (
	"qflasher/internal/domain"
	"qflasher/internal/usecase/stepmodel"
)

// StartingMessage is shown between spawning the tool and its first line.
const StartingMessage = "Starting..."

// InputKind names something that happened to the session.
type InputKind int

const (
	InputBeginSetup InputKind = iota
	InputConfirmJumper
	InputGoBack
	InputStart
	InputAttemptStarted
	InputPreflightFailed
	InputProgress
	InputAttemptClosed
	InputDevice
	InputCancel
	InputRetry
	InputReset
)

// Input is fed to Apply. Only the fields its Kind needs are set.
type Input struct {
	Kind      InputKind
	AttemptID string               // AttemptStarted, Progress, AttemptClosed
	Event     domain.ProgressEvent // Progress
	Present   bool                 // Device
	Err       error                // PreflightFailed
}

// EffectKind names work the session loop performs after a transition.
type EffectKind int

const (
	// EffectPublish emits a new snapshot.
	EffectPublish EffectKind = iota
	// EffectLaunch runs preflight and spawns the tool, reporting back with
	// InputAttemptStarted or InputPreflightFailed.
	EffectLaunch
	// EffectKill terminates the attempt.
	EffectKill
	// EffectRelease stops following an attempt that already reported
	// success but lets the tool exit on its own.
	EffectRelease
	// EffectForget drops an attempt whose process has exited.
	EffectForget
)

// Effect is one instruction returned by Apply.
type Effect struct {
	Kind      EffectKind
	AttemptID string
	Reason    string // EffectLaunch: set for automatic starts
}

// Apply runs one transition and returns the effects the caller must carry
// out, in order. A rejected input changes nothing and returns an error;
// an input that no longer matters returns neither effects nor error.
func (m *machine) Apply(in Input) ([]Effect, error) {
	publish := Effect{Kind: EffectPublish}
	switch in.Kind {
	case InputBeginSetup:
		if err := m.beginSetup(); err != nil {
			return nil, err
		}
		return []Effect{publish}, nil
	case InputConfirmJumper:
		startNow, err := m.confirmJumper()
		if err != nil {
			return nil, err
		}
		if startNow {
			return append(append([]Effect{publish}, m.settle()...), Effect{Kind: EffectLaunch, Reason: "device already present"}), nil
		}
		return []Effect{publish}, nil
	case InputGoBack:
		if err := m.goBack(); err != nil {
			return nil, err
		}
		return []Effect{publish}, nil
	case InputStart:
		if err := m.canStart(); err != nil {
			return nil, err
		}
		return append(m.settle(), Effect{Kind: EffectLaunch}), nil
	case InputAttemptStarted:
		m.begin(in.AttemptID)
		return []Effect{publish}, nil
	case InputPreflightFailed:
		m.preflightFailed(in.Err)
		return []Effect{publish}, nil
	case InputProgress:
		if !m.apply(in.AttemptID, in.Event) {
			return nil, nil
		}
		return []Effect{publish}, nil
	case InputAttemptClosed:
		forget := Effect{Kind: EffectForget, AttemptID: in.AttemptID}
		if !m.attemptClosed(in.AttemptID) {
			return []Effect{forget}, nil
		}
		return []Effect{forget, publish}, nil
	case InputDevice:
		if m.setDevice(in.Present) {
			return append(append([]Effect{publish}, m.settle()...), Effect{Kind: EffectLaunch, Reason: "device connected"}), nil
		}
		return []Effect{publish}, nil
	case InputCancel:
		stop, err := m.cancel()
		if err != nil {
			return nil, err
		}
		if stop != "" {
			return []Effect{{Kind: EffectKill, AttemptID: stop}, publish}, nil
		}
		return []Effect{publish}, nil
	case InputRetry:
		if err := m.retry(); err != nil {
			return nil, err
		}
		return []Effect{publish}, nil
	case InputReset:
		settle := m.settle()
		if err := m.reset(); err != nil {
			return nil, err
		}
		return append(settle, publish), nil
	}
	return nil, domain.NewDomainError("Session.Apply", domain.ErrInvalidInput, "unknown input")
}

// settle says what to do with the last attempt before it is abandoned. A
// tool that printed its success line may still be finishing up and must not
// be interrupted; anything else is killed.
func (m *machine) settle() []Effect {
	if m.attemptID == "" {
		return nil
	}
	if m.state.Kind == domain.StateComplete {
		return []Effect{{Kind: EffectRelease, AttemptID: m.attemptID}}
	}
	return []Effect{{Kind: EffectKill, AttemptID: m.attemptID}}
}

// machine holds the session state and its transition rules. It performs
// no I/O; the Session loop is its only caller.
type machine struct {
	state         domain.SessionState
	attemptID     string
	devicePresent bool
}

func (m *machine) kind() domain.StateKind { return m.state.Kind }

func (m *machine) invalid(op string) error {
	return domain.NewSubSystemError("session", op, domain.ErrInvalidTransition, "from "+m.state.Kind.String())
}

func (m *machine) beginSetup() error {
	if m.state.Kind != domain.StateIdle {
		return m.invalid("Session.BeginSetup")
	}
	m.state = domain.SessionState{Kind: domain.StateAwaitingJumper}
	return nil
}

// confirmJumper reports whether flashing should start right away because
// the device is already attached.
func (m *machine) confirmJumper() (startNow bool, err error) {
	if m.state.Kind != domain.StateAwaitingJumper {
		return false, m.invalid("Session.ConfirmJumper")
	}
	m.state = domain.SessionState{Kind: domain.StateAwaitingDevice}
	return m.devicePresent, nil
}

func (m *machine) goBack() error {
	switch m.state.Kind {
	case domain.StateAwaitingJumper:
		m.state = domain.SessionState{Kind: domain.StateIdle}
	case domain.StateAwaitingDevice:
		m.state = domain.SessionState{Kind: domain.StateAwaitingJumper}
	default:
		return m.invalid("Session.GoBack")
	}
	return nil
}

// setDevice records presence and reports whether an arrival should start
// flashing.
func (m *machine) setDevice(present bool) (startNow bool) {
	m.devicePresent = present
	return present && m.state.Kind == domain.StateAwaitingDevice
}

func (m *machine) canStart() error {
	if m.state.Kind == domain.StateInProgress {
		return domain.NewSubSystemError("session", "Session.StartFlashing", domain.ErrFlashInProgress, m.attemptID)
	}
	return nil
}

func (m *machine) preflightFailed(err error) {
	m.attemptID = ""
	m.state = domain.SessionState{Kind: domain.StateFailed, Message: domain.UserMessage(err)}
}

func (m *machine) begin(attemptID string) {
	m.attemptID = attemptID
	m.state = domain.SessionState{
		Kind:    domain.StateInProgress,
		Step:    domain.StepChecking,
		Message: StartingMessage,
		Percent: 0,
	}
}

// apply folds one progress event into the state. Events from any attempt
// but the current one, or arriving after the attempt ended, are ignored.
func (m *machine) apply(attemptID string, evt domain.ProgressEvent) bool {
	if attemptID != m.attemptID || m.state.Kind != domain.StateInProgress {
		return false
	}
	prev := m.state.Percent
	switch evt.Kind {
	case domain.ProgressSuccess:
		m.state = domain.SessionState{Kind: domain.StateComplete, Step: domain.StepComplete, Message: evt.Message, Percent: 1.0}
	case domain.ProgressFailure:
		m.state = domain.SessionState{Kind: domain.StateFailed, Step: m.state.Step, Message: evt.Message, Percent: prev}
	default:
		m.state = domain.SessionState{
			Kind:    domain.StateInProgress,
			Step:    evt.Step,
			Message: evt.Message,
			Percent: stepmodel.ForEvent(evt, prev),
		}
	}
	return true
}

// attemptClosed handles an attempt whose events ended without an outcome.
func (m *machine) attemptClosed(attemptID string) bool {
	if attemptID != m.attemptID || m.state.Kind != domain.StateInProgress {
		return false
	}
	m.state = domain.SessionState{Kind: domain.StateFailed, Step: m.state.Step, Message: "Flasher stopped without reporting a result", Percent: m.state.Percent}
	return true
}

// cancel returns the attempt to stop, if any.
func (m *machine) cancel() (stopAttempt string, err error) {
	switch m.state.Kind {
	case domain.StateAwaitingJumper, domain.StateAwaitingDevice:
	case domain.StateInProgress:
		if !m.state.Step.CancellationSafe() {
			return "", domain.NewSubSystemError("session", "Session.Cancel", domain.ErrCancelUnsafe, m.state.Step.Title())
		}
		stopAttempt = m.attemptID
	default:
		return "", m.invalid("Session.Cancel")
	}
	m.attemptID = ""
	m.state = domain.SessionState{Kind: domain.StateIdle}
	return stopAttempt, nil
}

func (m *machine) retry() error {
	if m.state.Kind != domain.StateFailed {
		return m.invalid("Session.Retry")
	}
	m.state = domain.SessionState{Kind: domain.StateAwaitingJumper}
	return nil
}

func (m *machine) reset() error {
	if m.state.Kind == domain.StateInProgress {
		return domain.NewSubSystemError("session", "Session.Reset", domain.ErrFlashInProgress, m.attemptID)
	}
	m.attemptID = ""
	m.state = domain.SessionState{Kind: domain.StateIdle}
	return nil
}

func (m *machine) cancellationSafe() bool {
	switch m.state.Kind {
	case domain.StateAwaitingJumper, domain.StateAwaitingDevice:
		return true
	case domain.StateInProgress:
		return m.state.Step.CancellationSafe()
	default:
		return false
	}
}
