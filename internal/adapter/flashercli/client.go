// Package flashercli drives the external arduino-flasher-cli tool: version
// listing and streamed flashing with classified progress.
package flashercli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"qflasher/internal/domain"
	"qflasher/internal/infra/tracer"
	"qflasher/internal/usecase/classifier"
	"qflasher/internal/usecase/process"
)

// Client runs the flasher tool through a process.Runner.
type Client struct {
	runner      *process.Runner
	resolver    *Resolver
	listTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a Client. listTimeout bounds `list`; zero means no bound.
func NewClient(runner *process.Runner, resolver *Resolver, listTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{runner: runner, resolver: resolver, listTimeout: listTimeout, logger: logger}
}

// Resolve locates the executable.
func (c *Client) Resolve() (string, error) {
	return c.resolver.Resolve()
}

// ListVersions runs `list --format json` and decodes the result.
func (c *Client) ListVersions(ctx context.Context) (list *domain.VersionList, err error) {
	const op = "Flasher.ListVersions"

	ctx, span := tracer.StartSpan(ctx, "flasher.list")
	defer func() { tracer.End(span, err) }()

	path, err := c.resolver.Resolve()
	if err != nil {
		return nil, err
	}
	if c.listTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.listTimeout)
		defer cancel()
	}

	res, err := c.runner.Run(ctx, path, []string{"list", "--format", "json"})
	if errors.Is(err, domain.ErrTimeout) {
		return nil, domain.NewSubSystemError("flasher", op, domain.ErrTimeout,
			fmt.Sprintf("list did not finish within %s", c.listTimeout))
	}
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	span.SetAttributes(tracer.IntAttr("exit_code", res.ExitCode))
	if res.ExitCode != 0 {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return nil, domain.NewSubSystemError("flasher", op, domain.ErrExecutionFailed, detail)
	}

	list, err = ParseVersionList([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("versions listed", "releases", len(list.Releases), "has_latest", list.Latest != nil)
	return list, nil
}

// LatestRelease returns the newest flashable image, or nil when the tool
// lists none.
func (c *Client) LatestRelease(ctx context.Context) (*domain.VersionInfo, error) {
	list, err := c.ListVersions(ctx)
	if err != nil {
		return nil, err
	}
	return Newest(list), nil
}

// Flash starts `flash <version> -y` and returns the running attempt.
func (c *Client) Flash(ctx context.Context, version string) (domain.FlashAttempt, error) {
	if version == "" {
		version = "latest"
	}
	if !ValidVersion(version) {
		return nil, domain.NewSubSystemError("flasher", "Flasher.Flash", domain.ErrInvalidInput, "bad version "+version)
	}
	path, err := c.resolver.Resolve()
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.StartSpan(ctx, "flasher.flash")
	span.SetAttributes(tracer.StringAttr("version", version))

	stream, err := c.runner.Stream(ctx, path, []string{"flash", version, "-y"})
	if err != nil {
		tracer.End(span, err)
		return nil, err
	}

	a := &Attempt{
		stream:  stream,
		events:  make(chan domain.ProgressEvent, 16),
		stopped: make(chan struct{}),
		logger:  c.logger.With("attempt_id", stream.ID()),
		span:    span,
	}
	go a.run()
	return a, nil
}

// Attempt is a streamed flash invocation.
type Attempt struct {
	stream  *process.Stream
	events  chan domain.ProgressEvent
	stopped chan struct{}
	stop    sync.Once
	logger  *slog.Logger
	span    trace.Span
}

func (a *Attempt) ID() string                          { return a.stream.ID() }
func (a *Attempt) Events() <-chan domain.ProgressEvent { return a.events }

// Kill terminates the tool. Pending events are discarded.
func (a *Attempt) Kill() {
	a.stop.Do(func() { close(a.stopped) })
	a.stream.Kill()
}

func (a *Attempt) run() {
	defer close(a.events)

	var (
		cls      = classifier.New()
		stdout   process.LineBuffer
		stderr   process.LineBuffer
		terminal bool
		sampled  = rate.Sometimes{First: 5, Interval: 2 * time.Second}
	)

	emit := func(evts []domain.ProgressEvent) {
		for _, e := range evts {
			if terminal {
				return
			}
			select {
			case a.events <- e:
			case <-a.stopped:
				return
			}
			terminal = e.Terminal()
		}
	}

	for c := range a.stream.Chunks() {
		if c.Source == domain.SourceStderr {
			for _, line := range stderr.Feed(c.Data) {
				a.logger.Debug("flasher stderr", "line", line)
				emit(cls.ClassifyStderr(line))
			}
			continue
		}
		for _, line := range stdout.Feed(c.Data) {
			sampled.Do(func() { a.logger.Debug("flasher output", "line", line) })
			emit(cls.Classify(line))
		}
	}
	if rest := stdout.Flush(); rest != "" {
		emit(cls.Classify(rest))
	}
	if rest := stderr.Flush(); rest != "" {
		emit(cls.ClassifyStderr(rest))
	}

	code, err := a.stream.Wait()
	a.span.SetAttributes(tracer.IntAttr("exit_code", code))

	select {
	case <-a.stopped:
		a.logger.Info("flash attempt killed")
		tracer.End(a.span, context.Canceled)
		return
	default:
	}

	switch {
	case terminal:
	case err != nil:
		emit([]domain.ProgressEvent{domain.Failure(domain.UserMessage(err))})
	case code == 0:
		emit([]domain.ProgressEvent{domain.Success()})
	default:
		msg := strings.TrimSpace(a.stream.StderrTail())
		if msg == "" {
			msg = fmt.Sprintf("flasher exited with status %d", code)
		}
		emit([]domain.ProgressEvent{domain.Failure(msg)})
	}

	if code != 0 {
		tracer.End(a.span, fmt.Errorf("exit status %d", code))
	} else {
		tracer.End(a.span, nil)
	}
	a.logger.Info("flash attempt finished", "exit_code", code)
}
