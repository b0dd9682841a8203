package flasher

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"qflasher/internal/domain"
)

const versionLookupTimeout = 30 * time.Second

// listenCmd waits for the next state-change event. The newer of the event
// payload and the session's current snapshot wins, so a dropped event never
// hides the latest state.
func listenCmd(events <-chan domain.Event, session Controller) tea.Cmd {
	return func() tea.Msg {
		for {
			evt, ok := <-events
			if !ok {
				return eventsClosedMsg{}
			}
			snap, ok := domain.DecodeSnapshot(evt)
			if !ok {
				continue
			}
			if cur := session.Snapshot(); cur.Seq > snap.Seq {
				snap = cur
			}
			return SnapshotMsg{Snapshot: snap}
		}
	}
}

// fetchVersionCmd looks up the latest image in the background.
func fetchVersionCmd(ctx context.Context, session Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, versionLookupTimeout)
		defer cancel()
		return VersionMsg{Info: session.FetchLatestVersion(ctx)}
	}
}

// actionCmd runs a session call off the UI goroutine.
func actionCmd(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return ActionResultMsg{Op: op, Err: fn()}
	}
}
