package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"qflasher/internal/domain"
)

const readChunkSize = 4096

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	KillGrace     time.Duration // time between SIGTERM and SIGKILL on cancellation (default: 5s)
	StderrTailMax int           // bytes of stderr kept for failure messages (default: 64KB)
	ChunkBuffer   int           // buffered chunks before readers block (default: 64)
}

// Runner spawns external executables and streams their output.
type Runner struct {
	config RunnerConfig
	bus    domain.EventBus
	logger *slog.Logger
}

// NewRunner creates a Runner. bus may be nil.
func NewRunner(cfg RunnerConfig, bus domain.EventBus, logger *slog.Logger) *Runner {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	if cfg.StderrTailMax <= 0 {
		cfg.StderrTailMax = 64 * 1024
	}
	if cfg.ChunkBuffer <= 0 {
		cfg.ChunkBuffer = 64
	}
	return &Runner{config: cfg, bus: bus, logger: logger}
}

// Chunk is one read from a process pipe.
type Chunk struct {
	Source domain.OutputSource
	Data   []byte
}

// Result is the collected outcome of Run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Stream is a running process whose output is delivered as chunks.
// Callers must drain Chunks until it is closed.
type Stream struct {
	runner  *Runner
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	chunks  chan Chunk
	stderr  *ringBuffer
	done    chan struct{}
	killed  chan struct{}
	kill    sync.Once
	mu      sync.Mutex
	record  domain.ProcessRecord
	waitErr error
}

// Run executes path to completion and returns its exit code and output.
// A non-zero exit is reported through Result, not as an error.
func (r *Runner) Run(ctx context.Context, path string, args []string) (*Result, error) {
	s, err := r.Stream(ctx, path, args)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	for c := range s.Chunks() {
		if c.Source == domain.SourceStderr {
			stderr.Write(c.Data)
		} else {
			stdout.Write(c.Data)
		}
	}

	code, err := s.Wait()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewSubSystemError("process", "Runner.Run", domain.ErrTimeout, path)
		}
		return nil, err
	}
	return &Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Stream starts path with args and returns immediately. Cancelling ctx or
// calling Kill sends SIGTERM to the whole process group; the group gets
// SIGKILL if it is still around after KillGrace.
func (r *Runner) Stream(ctx context.Context, path string, args []string) (*Stream, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, domain.NewSubSystemError("process", "Runner.Stream", domain.ErrExecutableNotFound, path)
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, path, args...)
	setProcessGroup(cmd)
	done := make(chan struct{})
	grace := r.config.KillGrace
	cmd.Cancel = func() error {
		go escalate(cmd, grace, done)
		return signalProcessGroup(cmd, false)
	}
	cmd.WaitDelay = grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("process: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("process: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, domain.NewSubSystemError("process", "Runner.Stream", domain.ErrExecutionFailed, err.Error())
	}

	s := &Stream{
		runner: r,
		cmd:    cmd,
		cancel: cancel,
		chunks: make(chan Chunk, r.config.ChunkBuffer),
		stderr: newRingBuffer(r.config.StderrTailMax),
		done:   done,
		killed: make(chan struct{}),
		record: domain.ProcessRecord{
			ID:        r.newID(),
			Command:   path,
			Args:      args,
			Status:    domain.ProcessStatusRunning,
			StartedAt: time.Now(),
		},
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go s.pump(&readers, stdout, domain.SourceStdout, nil)
	go s.pump(&readers, stderr, domain.SourceStderr, s.stderr)
	go s.waitForCompletion(&readers)

	r.emitEvent(ctx, domain.EventProcessStarted, s.Record())
	r.logger.Info("process started", "process_id", s.record.ID, "command", path, "args", args)
	return s, nil
}

// ID is the unique identifier of this process run.
func (s *Stream) ID() string { return s.record.ID }

// Chunks delivers output in arrival order per pipe. It is closed once both
// pipes reach EOF.
func (s *Stream) Chunks() <-chan Chunk { return s.chunks }

// Done is closed after the process has been reaped.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait blocks until the process exits and returns its exit code. The error
// is non-nil only when the process did not exit on its own (killed or
// failed to wait).
func (s *Stream) Wait() (int, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	code := -1
	if s.record.ExitCode != nil {
		code = *s.record.ExitCode
	}
	return code, s.waitErr
}

// StderrTail returns the most recent stderr output.
func (s *Stream) StderrTail() string { return s.stderr.String() }

// Record returns a copy of the process record.
func (s *Stream) Record() domain.ProcessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Kill terminates the process group, politely first. Safe to call more than
// once and after exit.
func (s *Stream) Kill() {
	s.kill.Do(func() {
		close(s.killed)
		s.cancel()
	})
}

// --- internal ---

// escalate force-kills the group unless the process is reaped within grace.
func escalate(cmd *exec.Cmd, grace time.Duration, done <-chan struct{}) {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		_ = signalProcessGroup(cmd, true)
	}
}

func (s *Stream) pump(wg *sync.WaitGroup, r io.Reader, source domain.OutputSource, tee io.Writer) {
	defer wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if tee != nil {
				tee.Write(data)
			}
			s.chunks <- Chunk{Source: source, Data: data}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.runner.logger.Debug("process pipe read ended", "process_id", s.record.ID, "source", source, "error", err)
			}
			return
		}
	}
}

func (s *Stream) waitForCompletion(readers *sync.WaitGroup) {
	// Pipes must be drained before Wait closes them.
	readers.Wait()
	close(s.chunks)

	err := s.cmd.Wait()
	s.cancel()

	killed := false
	select {
	case <-s.killed:
		killed = true
	default:
	}

	s.mu.Lock()
	now := time.Now()
	s.record.EndedAt = &now
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code := 0
		s.record.ExitCode = &code
		s.record.Status = domain.ProcessStatusCompleted
	case killed:
		s.record.Status = domain.ProcessStatusKilled
		s.waitErr = domain.NewSubSystemError("process", "Stream.Wait", domain.ErrExecutionFailed, "process killed")
	case errors.As(err, &exitErr) && exitErr.Exited():
		code := exitErr.ExitCode()
		s.record.ExitCode = &code
		s.record.Status = domain.ProcessStatusFailed
	default:
		s.record.Status = domain.ProcessStatusFailed
		s.waitErr = domain.NewSubSystemError("process", "Stream.Wait", domain.ErrExecutionFailed, err.Error())
	}
	rec := s.record
	s.mu.Unlock()
	close(s.done)

	if rec.Status == domain.ProcessStatusKilled {
		s.runner.emitEvent(context.Background(), domain.EventProcessKilled, rec)
		s.runner.logger.Info("process killed", "process_id", rec.ID, "ran", rec.Duration())
		return
	}
	s.runner.emitEvent(context.Background(), domain.EventProcessCompleted, rec)
	s.runner.logger.Info("process finished", "process_id", rec.ID, "status", rec.Status, "ran", rec.Duration())
}

func (r *Runner) emitEvent(ctx context.Context, eventType domain.EventType, payload any) {
	if r.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	r.bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   data,
	})
}

func (r *Runner) newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
