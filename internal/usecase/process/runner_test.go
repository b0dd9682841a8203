package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qflasher/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, evt domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()               { return func() {} }
func (b *recordingBus) Close()                                                {}

func (b *recordingBus) Types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		types[i] = e.Type
	}
	return types
}

func shellPath(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func newTestRunner(bus domain.EventBus) *Runner {
	return NewRunner(RunnerConfig{KillGrace: time.Second}, bus, newTestLogger())
}

func TestRunnerRunCollectsOutput(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(nil)

	res, err := r.Run(context.Background(), sh, []string{"-c", "echo out; echo err >&2"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestRunnerRunNonZeroExit(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(nil)

	res, err := r.Run(context.Background(), sh, []string{"-c", "echo boom >&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", res.Stderr)
}

func TestRunnerRunTimeout(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx, sh, []string{"-c", "sleep 30"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
}

func TestRunnerMissingExecutable(t *testing.T) {
	r := newTestRunner(nil)
	_, err := r.Stream(context.Background(), "/nonexistent/arduino-flasher-cli", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExecutableNotFound))
}

func TestStreamChunksAndStderrTail(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(nil)

	s, err := r.Stream(context.Background(), sh, []string{"-c", "printf 'a\\nb\\n'; printf 'fatal\\n' >&2; exit 1"})
	require.NoError(t, err)

	var out strings.Builder
	for c := range s.Chunks() {
		if c.Source == domain.SourceStdout {
			out.Write(c.Data)
		}
	}
	code, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Equal(t, "a\nb\n", out.String())
	assert.Equal(t, "fatal\n", s.StderrTail())
	assert.Equal(t, domain.ProcessStatusFailed, s.Record().Status)
}

func TestStreamKill(t *testing.T) {
	sh := shellPath(t)
	bus := &recordingBus{}
	r := newTestRunner(bus)

	// the child spawns its own sleeper; the group kill must reap both
	s, err := r.Stream(context.Background(), sh, []string{"-c", "sleep 60 & wait"})
	require.NoError(t, err)

	go func() {
		for range s.Chunks() {
		}
	}()

	s.Kill()
	s.Kill()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not reaped after Kill")
	}

	_, err = s.Wait()
	assert.True(t, errors.Is(err, domain.ErrExecutionFailed))
	assert.Equal(t, domain.ProcessStatusKilled, s.Record().Status)
	assert.NotEmpty(t, s.ID())
	require.Eventually(t, func() bool { return len(bus.Types()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.EventType{domain.EventProcessStarted, domain.EventProcessKilled}, bus.Types())
}

func TestStreamKillSendsTermFirst(t *testing.T) {
	sh := shellPath(t)
	r := NewRunner(RunnerConfig{KillGrace: 30 * time.Second}, nil, newTestLogger())

	s, err := r.Stream(context.Background(), sh, []string{"-c", "trap 'echo cleaned up; exit 3' TERM; echo ready; while :; do sleep 0.1; done"})
	require.NoError(t, err)

	var out strings.Builder
	ready := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for c := range s.Chunks() {
			out.Write(c.Data)
			if strings.Contains(string(c.Data), "ready") {
				close(ready)
			}
		}
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("child never became ready")
	}
	s.Kill()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit on SIGTERM")
	}
	<-drained
	assert.Contains(t, out.String(), "cleaned up")
	assert.Equal(t, domain.ProcessStatusKilled, s.Record().Status)
}

func TestStreamKillEscalatesWhenTermIgnored(t *testing.T) {
	sh := shellPath(t)
	r := NewRunner(RunnerConfig{KillGrace: 200 * time.Millisecond}, nil, newTestLogger())

	s, err := r.Stream(context.Background(), sh, []string{"-c", "trap '' TERM; sleep 60"})
	require.NoError(t, err)
	go func() {
		for range s.Chunks() {
		}
	}()

	// let the shell install its trap
	time.Sleep(100 * time.Millisecond)
	s.Kill()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("group not force-killed after the grace period")
	}
	assert.Equal(t, domain.ProcessStatusKilled, s.Record().Status)
}

func TestStreamEventsOnCompletion(t *testing.T) {
	sh := shellPath(t)
	bus := &recordingBus{}
	r := newTestRunner(bus)

	s, err := r.Stream(context.Background(), sh, []string{"-c", "true"})
	require.NoError(t, err)
	for range s.Chunks() {
	}
	code, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	// completion is published after done is closed
	require.Eventually(t, func() bool { return len(bus.Types()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.EventType{domain.EventProcessStarted, domain.EventProcessCompleted}, bus.Types())
}
