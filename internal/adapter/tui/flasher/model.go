package flasher

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qflasher/internal/adapter/tui/components"
	"qflasher/internal/adapter/tui/theme"
	"qflasher/internal/adapter/tui/uxerror"
	"qflasher/internal/domain"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Controller is the part of the flash session the TUI drives.
type Controller interface {
	Snapshot() domain.Snapshot
	FetchLatestVersion(ctx context.Context) *domain.VersionInfo
	BeginSetup() error
	ConfirmJumper() error
	GoBack() error
	StartFlashing() error
	Cancel() error
	Retry() error
	Reset() error
}

// SnapshotSource delivers bus events on a channel. *eventbus.Bus
// implements it.
type SnapshotSource interface {
	Channel(size int, types ...domain.EventType) (<-chan domain.Event, func())
}

// Deps are the dependencies of the TUI model.
type Deps struct {
	Context context.Context
	Session Controller
	Events  SnapshotSource
}

// Model is the root Bubble Tea model of the flasher TUI.
type Model struct {
	deps Deps

	snap   domain.Snapshot
	events <-chan domain.Event
	unsub  func()

	spinner  spinner.Model
	progress progress.Model
	steps    components.StepIndicatorModel

	notice      string // transient status-bar text, cleared on the next key
	confirmQuit bool
	quitting    bool
	width       int
	height      int
}

// New creates the model and subscribes to session snapshots. The
// subscription starts before the first snapshot is read so no transition
// falls between them.
func New(deps Deps) *Model {
	if deps.Context == nil {
		deps.Context = context.Background()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	m := &Model{
		deps:     deps,
		spinner:  s,
		progress: progress.New(progress.WithGradient(theme.ColorProgressStart, theme.ColorProgressEnd)),
		steps:    components.NewStepIndicator(),
	}
	if deps.Events != nil {
		m.events, m.unsub = deps.Events.Channel(64, domain.EventSessionStateChanged)
	}
	m.snap = deps.Session.Snapshot()
	m.syncSteps()
	return m
}

// Snapshot returns the snapshot currently displayed.
func (m *Model) Snapshot() domain.Snapshot { return m.snap }

// Init starts the spinner, the snapshot listener and the version lookup.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, fetchVersionCmd(m.deps.Context, m.deps.Session)}
	if m.events != nil {
		cmds = append(cmds, listenCmd(m.events, m.deps.Session))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, listenCmd(m.events, m.deps.Session)

	case eventsClosedMsg:
		return m, nil

	case VersionMsg:
		// The session publishes the version too; this covers a dropped event.
		if msg.Info != nil && m.snap.LatestVersion == "" {
			m.snap.LatestVersion = msg.Info.Version
		}
		return m, nil

	case ActionResultMsg:
		if msg.Err != nil && !errors.Is(msg.Err, domain.ErrSessionClosed) {
			m.notice = uxerror.Humanize(msg.Err).Title
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// applySnapshot installs snap unless an equal or newer one is already shown.
func (m *Model) applySnapshot(snap domain.Snapshot) {
	if snap.Seq <= m.snap.Seq {
		return
	}
	if snap.State.Kind != m.snap.State.Kind {
		m.confirmQuit = false
	}
	m.snap = snap
	m.syncSteps()
}

func (m *Model) syncSteps() {
	switch m.snap.State.Kind {
	case domain.StateInProgress:
		m.steps.Current = m.snap.State.Step
		m.steps.Finished = false
	case domain.StateComplete:
		m.steps.Finished = true
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	m.notice = ""

	if key == "ctrl+c" || key == "q" {
		return m.quit()
	}
	m.confirmQuit = false

	s := m.deps.Session
	switch m.snap.State.Kind {
	case domain.StateIdle:
		if key == "enter" || key == " " {
			return m, actionCmd("begin", s.BeginSetup)
		}
	case domain.StateAwaitingJumper:
		switch key {
		case "enter", " ":
			return m, actionCmd("confirm", s.ConfirmJumper)
		case "esc", "backspace", "b":
			return m, actionCmd("back", s.GoBack)
		}
	case domain.StateAwaitingDevice:
		switch key {
		case "enter":
			// Manual start for hosts without hotplug detection.
			return m, actionCmd("start", s.StartFlashing)
		case "esc", "backspace", "b":
			return m, actionCmd("back", s.GoBack)
		case "c":
			return m, actionCmd("cancel", s.Cancel)
		}
	case domain.StateInProgress:
		if key == "c" || key == "esc" {
			if !m.snap.CancellationSafe {
				m.notice = "Cannot cancel while flashing"
				return m, nil
			}
			return m, actionCmd("cancel", s.Cancel)
		}
	case domain.StateComplete:
		if key == "enter" {
			return m, actionCmd("reset", s.Reset)
		}
	case domain.StateFailed:
		switch key {
		case "enter", "r":
			return m, actionCmd("retry", s.Retry)
		case "s":
			return m, actionCmd("reset", s.Reset)
		}
	}
	return m, nil
}

// quit exits, asking for confirmation while the board is being written.
func (m *Model) quit() (tea.Model, tea.Cmd) {
	unsafe := m.snap.State.Kind == domain.StateInProgress && !m.snap.CancellationSafe
	if unsafe && !m.confirmQuit {
		m.confirmQuit = true
		m.notice = "Flashing in progress. Press again to quit anyway"
		return m, nil
	}
	m.quitting = true
	if m.unsub != nil {
		m.unsub()
	}
	return m, tea.Quit
}

func (m *Model) layout() {
	w := theme.Clamp(m.width-8, 20, theme.MaxContentWidth)
	m.progress.Width = w
	m.steps.SetWidth(w)
}

// View renders the current screen and the status bar.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	body := m.screen()
	frame := theme.Screen
	if m.snap.State.Kind == domain.StateInProgress && !m.snap.CancellationSafe {
		frame = theme.ScreenDanger
	}
	if m.width > 0 {
		frame = frame.Width(theme.Clamp(m.width-2, 20, theme.MaxContentWidth+6))
	}

	sb := components.NewStatusBar()
	sb.SetWidth(m.width)
	sb.Hints = m.hints()
	sb.DevicePresent = m.snap.DevicePresent
	sb.Version = m.snap.TargetVersion
	sb.Extra = m.notice

	return lipgloss.JoinVertical(lipgloss.Left, frame.Render(body), sb.View())
}

func (m *Model) hints() []components.KeyHint {
	quit := components.KeyHint{Key: "q", Desc: "Quit"}
	switch m.snap.State.Kind {
	case domain.StateIdle:
		return []components.KeyHint{{Key: "Enter", Desc: "Flash my board"}, quit}
	case domain.StateAwaitingJumper:
		return []components.KeyHint{{Key: "Enter", Desc: "Continue"}, {Key: "Esc", Desc: "Back"}, quit}
	case domain.StateAwaitingDevice:
		return []components.KeyHint{{Key: "Enter", Desc: "Start now"}, {Key: "Esc", Desc: "Back"}, {Key: "c", Desc: "Cancel"}, quit}
	case domain.StateInProgress:
		if m.snap.CancellationSafe {
			return []components.KeyHint{{Key: "c", Desc: "Cancel"}, quit}
		}
		return nil
	case domain.StateComplete:
		return []components.KeyHint{{Key: "Enter", Desc: "Done"}, quit}
	case domain.StateFailed:
		return []components.KeyHint{{Key: "r", Desc: "Try again"}, {Key: "s", Desc: "Start over"}, quit}
	}
	return []components.KeyHint{quit}
}
