package flashercli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
	"qflasher/internal/infra/logger"
	"qflasher/internal/usecase/process"
)

// fakeTool writes an executable shell script standing in for the flasher.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "arduino-flasher-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestClient(t *testing.T, tool string) *Client {
	t.Helper()
	runner := process.NewRunner(process.RunnerConfig{KillGrace: time.Second}, nil, logger.Discard())
	resolver := NewResolver(config.FlasherConfig{Executable: tool, Name: "arduino-flasher-cli"})
	return NewClient(runner, resolver, 5*time.Second, logger.Discard())
}

func collect(t *testing.T, a domain.FlashAttempt) []domain.ProgressEvent {
	t.Helper()
	var got []domain.ProgressEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-a.Events():
			if !ok {
				return got
			}
			got = append(got, e)
		case <-timeout:
			t.Fatal("attempt did not finish")
		}
	}
}

func TestListVersions(t *testing.T) {
	tool := fakeTool(t, `[ "$1 $2 $3" = "list --format json" ] || exit 9
echo '{"latest":{"version":"1.2.0","url":"https://x","sha256":"abc"},"releases":[]}'`)
	c := newTestClient(t, tool)

	list, err := c.ListVersions(context.Background())
	require.NoError(t, err)
	require.NotNil(t, list.Latest)
	assert.Equal(t, "1.2.0", list.Latest.Version)

	latest, err := c.LatestRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", latest.Version)
}

func TestListVersionsNonZeroExit(t *testing.T) {
	tool := fakeTool(t, `echo "network unreachable" >&2; exit 2`)
	c := newTestClient(t, tool)

	_, err := c.ListVersions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExecutionFailed))
	assert.Equal(t, "Flash failed: network unreachable", domain.UserMessage(err))
}

func TestListVersionsTimeoutIsFlasherTimeout(t *testing.T) {
	tool := fakeTool(t, `sleep 30`)
	runner := process.NewRunner(process.RunnerConfig{KillGrace: time.Second}, nil, logger.Discard())
	resolver := NewResolver(config.FlasherConfig{Executable: tool, Name: "arduino-flasher-cli"})
	c := NewClient(runner, resolver, 100*time.Millisecond, logger.Discard())

	_, err := c.ListVersions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, domain.CodeFlasherTimeout, domain.ErrorCodeOf(err))
}

func TestListVersionsMalformed(t *testing.T) {
	tool := fakeTool(t, `echo 'not json'`)
	c := newTestClient(t, tool)

	_, err := c.ListVersions(context.Background())
	assert.True(t, errors.Is(err, domain.ErrParse))
}

func TestFlashEndToEnd(t *testing.T) {
	tool := fakeTool(t, `[ "$1 $2 $3" = "flash latest -y" ] || exit 9
echo "Checking image version..."
echo "Downloading firmware"
printf "45%% |####      | 900MB/2.0GB\r"
echo ""
echo "Extracting archive"
echo "Waiting for EDL..."
echo "flashing via qdl"
echo "Partition 0 is now bootable"`)
	c := newTestClient(t, tool)

	a, err := c.Flash(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID())

	got := collect(t, a)
	require.Len(t, got, 7)
	assert.Equal(t, "Downloading: 45% (900MB/2.0GB)", got[2].Message)
	assert.Equal(t, domain.StepWaitingForDevice, got[4].Step)
	assert.Equal(t, domain.ProgressSuccess, got[6].Kind)
}

func TestFlashExplicitVersion(t *testing.T) {
	tool := fakeTool(t, `[ "$1 $2 $3" = "flash 1.1.0 -y" ] || exit 9`)
	c := newTestClient(t, tool)

	a, err := c.Flash(context.Background(), "1.1.0")
	require.NoError(t, err)
	got := collect(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProgressSuccess, got[0].Kind, "exit 0 counts as success")
}

func TestFlashRejectsBadVersion(t *testing.T) {
	c := newTestClient(t, fakeTool(t, "exit 0"))
	_, err := c.Flash(context.Background(), "--wipe")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestFlashFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"stderr tail on exit", `echo "device busy" >&2; exit 2`, "device busy"},
		{"empty stderr", `exit 3`, "flasher exited with status 3"},
		{"error line wins once", `echo "Error: no device" >&2; echo "second error" >&2; exit 1`, "Error: no device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, fakeTool(t, tt.body))
			a, err := c.Flash(context.Background(), "latest")
			require.NoError(t, err)

			got := collect(t, a)
			require.Len(t, got, 1)
			assert.Equal(t, domain.ProgressFailure, got[0].Kind)
			assert.Equal(t, tt.want, got[0].Message)
		})
	}
}

func TestFlashSuccessPhraseBeforeExit(t *testing.T) {
	tool := fakeTool(t, `echo "Partition 0 is now bootable"; exit 0`)
	c := newTestClient(t, tool)

	a, err := c.Flash(context.Background(), "latest")
	require.NoError(t, err)
	got := collect(t, a)
	require.Len(t, got, 1, "exit 0 after the phrase must not add a second terminal event")
	assert.Equal(t, domain.ProgressSuccess, got[0].Kind)
}

func TestFlashKill(t *testing.T) {
	tool := fakeTool(t, `echo "Downloading firmware"; sleep 60`)
	c := newTestClient(t, tool)

	a, err := c.Flash(context.Background(), "latest")
	require.NoError(t, err)

	select {
	case e := <-a.Events():
		assert.Equal(t, domain.StepDownloading, e.Step)
	case <-time.After(5 * time.Second):
		t.Fatal("no progress before kill")
	}

	a.Kill()
	got := collect(t, a)
	for _, e := range got {
		assert.False(t, e.Terminal(), "killed attempt must not report an outcome")
	}
}

func TestFlashMissingExecutable(t *testing.T) {
	runner := process.NewRunner(process.RunnerConfig{}, nil, logger.Discard())
	r := NewResolver(config.FlasherConfig{Executable: "/nonexistent/flasher", Name: "qflasher-test-missing-tool"})
	c := NewClient(runner, r, 0, logger.Discard())

	_, err := c.Flash(context.Background(), "latest")
	assert.True(t, errors.Is(err, domain.ErrExecutableNotFound))
}
