// Package flasher implements the Bubble Tea TUI that walks a user through
// flashing an Arduino UNO Q.
package flasher

import "qflasher/internal/domain"

// SnapshotMsg carries a session snapshot received from the event bus.
type SnapshotMsg struct {
	Snapshot domain.Snapshot
}

// VersionMsg carries the result of the latest-version lookup. Info is nil
// when the lookup failed.
type VersionMsg struct {
	Info *domain.VersionInfo
}

// ActionResultMsg reports the outcome of a user-triggered session call.
type ActionResultMsg struct {
	Op  string
	Err error
}

// eventsClosedMsg signals that the snapshot subscription ended.
type eventsClosedMsg struct{}
