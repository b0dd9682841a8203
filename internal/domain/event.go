package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Flash session events.
	EventSessionStateChanged EventType = "session.state.changed"
	EventSessionVersion      EventType = "session.version.fetched"

	// Device monitor events.
	EventDeviceConnected    EventType = "device.connected"
	EventDeviceDisconnected EventType = "device.disconnected"

	// Process management events.
	EventProcessStarted   EventType = "process.started"
	EventProcessCompleted EventType = "process.completed"
	EventProcessKilled    EventType = "process.killed"
)

// Event is the bus envelope. Payload is the JSON of a Snapshot, VersionInfo,
// ProcessRecord or device presence flag depending on Type.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler receives events delivered by an EventBus.
type EventHandler func(ctx context.Context, event Event)

// EventBus fans session, device and process events out to presenters and
// loggers. Handlers must not block; the TUI consumes through a buffered channel.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe and SubscribeAll return a func that removes the handler.
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
	// Close waits for running handlers; later publishes are dropped.
	Close()
}

// DecodeSnapshot extracts the Snapshot carried by a session.state.changed event.
func DecodeSnapshot(event Event) (Snapshot, bool) {
	if event.Type != EventSessionStateChanged {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(event.Payload, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}
