package domain

import "time"

// ProcessStatus is where a spawned flasher process is in its life.
type ProcessStatus string

const (
	ProcessStatusRunning   ProcessStatus = "running"
	ProcessStatusCompleted ProcessStatus = "completed"
	ProcessStatusFailed    ProcessStatus = "failed"
	ProcessStatusKilled    ProcessStatus = "killed"
)

// ProcessRecord is the bus payload for process.* events.
type ProcessRecord struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Args      []string      `json:"args"`
	Status    ProcessStatus `json:"status"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// Duration is how long the process ran, or has been running so far.
func (r ProcessRecord) Duration() time.Duration {
	if r.EndedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// OutputSource says which pipe a chunk came from.
type OutputSource int

const (
	SourceStdout OutputSource = iota
	SourceStderr
)

func (s OutputSource) String() string {
	if s == SourceStderr {
		return "stderr"
	}
	return "stdout"
}
