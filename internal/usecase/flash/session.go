// Package flash sequences a firmware flash: setup steps, preflight checks,
// the streamed tool run, and cancel/retry.
package flash

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"qflasher/internal/domain"
	"qflasher/internal/usecase/eventbus"
)

// DefaultReleaseWait is used when Options.ReleaseWait is unset.
const DefaultReleaseWait = 30 * time.Second

// Options configures a Session.
type Options struct {
	Version       string // "latest" or an explicit release
	DiskPath      string // volume checked before flashing
	RequiredBytes int64
	// ReleaseWait bounds how long Close waits for a tool that reported
	// success to exit before killing it.
	ReleaseWait time.Duration
}

// Session owns the flash state. Every mutation runs on a single loop
// goroutine fed by public calls, attempt progress and device updates.
type Session struct {
	flasher  domain.Flasher
	versions domain.VersionSource
	disk     domain.DiskSpaceProber
	device   domain.DevicePresence
	bus      domain.EventBus
	logger   *slog.Logger
	opts     Options

	reqs   chan request
	events chan attemptEvent
	snap   atomic.Pointer[domain.Snapshot]

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	// owned by the loop
	runCtx        context.Context
	m             machine
	seq           uint64
	latest        string
	attempt       domain.FlashAttempt
	attemptStop   chan struct{}
	attemptExited chan struct{}
	released      []releasedAttempt
	watchers      map[uint64]chan domain.Snapshot
	nextWatch     uint64
}

type releasedAttempt struct {
	attempt domain.FlashAttempt
	exited  <-chan struct{}
}

type request struct {
	fn    func() error
	reply chan error
}

type attemptEvent struct {
	attemptID string
	event     domain.ProgressEvent
	closed    bool
}

// NewSession creates an idle session. versions, disk and device may be nil.
// Start must be called before any other method.
func NewSession(flasher domain.Flasher, versions domain.VersionSource, disk domain.DiskSpaceProber, device domain.DevicePresence, bus domain.EventBus, logger *slog.Logger, opts Options) *Session {
	if opts.Version == "" {
		opts.Version = "latest"
	}
	if opts.RequiredBytes <= 0 {
		opts.RequiredBytes = domain.RequiredDiskSpace
	}
	if opts.DiskPath == "" {
		opts.DiskPath = "."
	}
	if opts.ReleaseWait <= 0 {
		opts.ReleaseWait = DefaultReleaseWait
	}
	s := &Session{
		flasher:  flasher,
		versions: versions,
		disk:     disk,
		device:   device,
		bus:      bus,
		logger:   logger,
		opts:     opts,
		reqs:     make(chan request),
		events:   make(chan attemptEvent),
		done:     make(chan struct{}),
		watchers: make(map[uint64]chan domain.Snapshot),
	}
	initial := domain.Snapshot{TargetVersion: opts.Version, State: domain.SessionState{Kind: domain.StateIdle}}
	s.snap.Store(&initial)
	return s
}

// Start launches the session loop. It stops when ctx is done or Close is
// called; a running attempt is killed on the way out unless it already
// reported success.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.runCtx = ctx
		if s.device != nil {
			s.m.devicePresent = s.device.Present()
		}
		s.publish()
		go s.loop(ctx)
	})
}

// Close stops the loop and waits for it to exit, then gives a tool that
// reported success up to ReleaseWait to finish.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.awaitReleased()
	})
}

// Snapshot returns the most recently published snapshot.
func (s *Session) Snapshot() domain.Snapshot { return *s.snap.Load() }

// Watch delivers the latest snapshot after every transition. Intermediate
// snapshots are conflated when the reader falls behind; the newest one is
// never lost. The returned function stops the watch.
func (s *Session) Watch() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)
	var id uint64
	err := s.do(func() error {
		s.nextWatch++
		id = s.nextWatch
		s.watchers[id] = ch
		ch <- s.Snapshot()
		return nil
	})
	if err != nil {
		return ch, func() {}
	}
	return ch, func() { _ = s.do(func() error { delete(s.watchers, id); return nil }) }
}

// FetchLatestVersion asks the tool for the newest image. Failures are
// logged and yield nil; they never change the session state.
func (s *Session) FetchLatestVersion(ctx context.Context) *domain.VersionInfo {
	if s.versions == nil {
		return nil
	}
	info, err := s.versions.LatestRelease(ctx)
	if err != nil {
		s.logger.Warn("latest version unavailable", "error", err, "code", domain.ErrorCodeOf(err))
		return nil
	}
	if info == nil {
		return nil
	}
	eventbus.Emit(ctx, s.bus, domain.EventSessionVersion, info)
	_ = s.do(func() error {
		s.latest = info.Version
		s.publish()
		return nil
	})
	return info
}

// BeginSetup moves from Idle to AwaitingJumper.
func (s *Session) BeginSetup() error {
	return s.do(func() error { return s.apply(Input{Kind: InputBeginSetup}) })
}

// ConfirmJumper moves to AwaitingDevice and starts flashing immediately
// when the device is already attached.
func (s *Session) ConfirmJumper() error {
	return s.do(func() error { return s.apply(Input{Kind: InputConfirmJumper}) })
}

// GoBack steps back one setup screen.
func (s *Session) GoBack() error {
	return s.do(func() error { return s.apply(Input{Kind: InputGoBack}) })
}

// StartFlashing runs the preflight checks and spawns the tool. Preflight
// failures are returned and also leave the session Failed.
func (s *Session) StartFlashing() error {
	return s.do(func() error { return s.apply(Input{Kind: InputStart}) })
}

// Cancel returns to Idle from the setup screens or a cancellation-safe
// step, killing the running tool. It fails with ErrCancelUnsafe once the
// device is being written.
func (s *Session) Cancel() error {
	return s.do(func() error { return s.apply(Input{Kind: InputCancel}) })
}

// Retry leaves Failed for AwaitingJumper. Preflight runs again on the next
// start.
func (s *Session) Retry() error {
	return s.do(func() error { return s.apply(Input{Kind: InputRetry}) })
}

// Reset returns a finished session to Idle. A tool that already reported
// success is left to exit by itself.
func (s *Session) Reset() error {
	return s.do(func() error { return s.apply(Input{Kind: InputReset}) })
}

// --- loop ---

func (s *Session) do(fn func() error) error {
	r := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.reqs <- r:
	case <-s.done:
		return domain.ErrSessionClosed
	}
	select {
	case err := <-r.reply:
		return err
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	defer func() { _ = s.execute(s.m.settle()) }()

	var deviceUpdates <-chan bool
	if s.device != nil {
		deviceUpdates = s.device.Updates()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.reqs:
			r.reply <- r.fn()
		case ev := <-s.events:
			s.handleAttemptEvent(ev)
		case present := <-deviceUpdates:
			_ = s.apply(Input{Kind: InputDevice, Present: present})
		}
	}
}

// apply feeds one input to the machine and carries out its effects.
func (s *Session) apply(in Input) error {
	effects, err := s.m.Apply(in)
	if err != nil {
		return err
	}
	return s.execute(effects)
}

func (s *Session) execute(effects []Effect) error {
	var err error
	for _, e := range effects {
		switch e.Kind {
		case EffectPublish:
			s.publish()
		case EffectKill:
			s.killAttempt(e.AttemptID)
		case EffectRelease:
			s.releaseAttempt(e.AttemptID)
		case EffectForget:
			s.forgetAttempt(e.AttemptID)
		case EffectLaunch:
			if e.Reason == "" {
				err = s.launch()
				continue
			}
			s.logger.Info("starting flash automatically", "reason", e.Reason)
			if lerr := s.launch(); lerr != nil {
				s.logger.Warn("automatic start failed", "error", lerr, "code", domain.ErrorCodeOf(lerr))
			}
		}
	}
	return err
}

func (s *Session) launch() error {
	if _, err := s.flasher.Resolve(); err != nil {
		return s.failPreflight(err)
	}
	if err := s.checkDiskSpace(); err != nil {
		return s.failPreflight(err)
	}

	// Shutdown settles the attempt explicitly; cancelling the loop must not
	// signal a tool that is still finishing after success.
	attempt, err := s.flasher.Flash(context.WithoutCancel(s.runCtx), s.opts.Version)
	if err != nil {
		return s.failPreflight(err)
	}
	s.track(attempt)
	s.logger.Info("flash started", "attempt_id", attempt.ID(), "version", s.opts.Version)
	return s.apply(Input{Kind: InputAttemptStarted, AttemptID: attempt.ID()})
}

func (s *Session) checkDiskSpace() error {
	if s.disk == nil {
		return nil
	}
	avail, err := s.disk.Available(s.opts.DiskPath)
	if err != nil {
		// An unknown answer is not a reason to refuse.
		s.logger.Warn("disk space check skipped", "path", s.opts.DiskPath, "error", err)
		return nil
	}
	if avail < s.opts.RequiredBytes {
		return &domain.InsufficientDiskSpaceError{Available: avail, Required: s.opts.RequiredBytes}
	}
	return nil
}

func (s *Session) failPreflight(err error) error {
	s.logger.Warn("flash preflight failed", "error", err, "code", domain.ErrorCodeOf(err))
	_ = s.apply(Input{Kind: InputPreflightFailed, Err: err})
	return err
}

// forward relays one attempt's events into the loop. Once stop is closed it
// keeps draining without relaying, so the tool never blocks on a full
// channel. exited is closed when the attempt's events end.
func (s *Session) forward(a domain.FlashAttempt, stop <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	id := a.ID()
	relay := true
	for evt := range a.Events() {
		if !relay {
			continue
		}
		select {
		case s.events <- attemptEvent{attemptID: id, event: evt}:
		case <-stop:
			relay = false
		}
	}
	if relay {
		select {
		case s.events <- attemptEvent{attemptID: id, closed: true}:
		case <-stop:
		}
	}
}

func (s *Session) handleAttemptEvent(ev attemptEvent) {
	in := Input{Kind: InputProgress, AttemptID: ev.attemptID, Event: ev.event}
	if ev.closed {
		in.Kind = InputAttemptClosed
	}
	before := s.m.kind()
	effects, err := s.m.Apply(in)
	if err != nil || (!ev.closed && len(effects) == 0) {
		s.logger.Debug("stale attempt event dropped", "attempt_id", ev.attemptID, "kind", ev.event.Kind)
		return
	}
	if after := s.m.kind(); after != before {
		switch after {
		case domain.StateComplete:
			s.logger.Info("flash complete", "attempt_id", ev.attemptID)
		case domain.StateFailed:
			s.logger.Warn("flash failed", "attempt_id", ev.attemptID, "message", s.m.state.Message)
		}
	}
	_ = s.execute(effects)
}

func (s *Session) track(a domain.FlashAttempt) {
	s.attempt = a
	s.attemptStop = make(chan struct{})
	s.attemptExited = make(chan struct{})
	go s.forward(a, s.attemptStop, s.attemptExited)
}

// detach stops relaying the current attempt if it is id.
func (s *Session) detach(id string) (domain.FlashAttempt, <-chan struct{}) {
	if s.attempt == nil || s.attempt.ID() != id {
		return nil, nil
	}
	a, exited := s.attempt, s.attemptExited
	close(s.attemptStop)
	s.attempt, s.attemptStop, s.attemptExited = nil, nil, nil
	return a, exited
}

func (s *Session) killAttempt(id string) {
	if a, _ := s.detach(id); a != nil {
		s.logger.Info("stopping flasher", "attempt_id", id)
		a.Kill()
	}
}

// releaseAttempt lets a tool that already succeeded finish on its own.
// Close waits for it.
func (s *Session) releaseAttempt(id string) {
	a, exited := s.detach(id)
	if a == nil {
		return
	}
	s.logger.Info("flasher still finishing, leaving it to exit", "attempt_id", id)
	kept := s.released[:0]
	for _, r := range s.released {
		select {
		case <-r.exited:
		default:
			kept = append(kept, r)
		}
	}
	s.released = append(kept, releasedAttempt{attempt: a, exited: exited})
}

func (s *Session) forgetAttempt(id string) {
	s.detach(id)
}

// awaitReleased waits up to ReleaseWait for released tools to exit and
// kills whatever is still running after that.
func (s *Session) awaitReleased() {
	if len(s.released) == 0 {
		return
	}
	timer := time.NewTimer(s.opts.ReleaseWait)
	defer timer.Stop()
	for i, r := range s.released {
		select {
		case <-r.exited:
			continue
		case <-timer.C:
		}
		for _, rest := range s.released[i:] {
			select {
			case <-rest.exited:
			default:
				s.logger.Warn("flasher did not exit after success, killing it", "attempt_id", rest.attempt.ID(), "waited", s.opts.ReleaseWait)
				rest.attempt.Kill()
			}
		}
		break
	}
	s.released = nil
}

func (s *Session) publish() {
	s.seq++
	snap := domain.Snapshot{
		Seq:              s.seq,
		State:            s.m.state,
		AttemptID:        s.m.attemptID,
		CancellationSafe: s.m.cancellationSafe(),
		DevicePresent:    s.m.devicePresent,
		LatestVersion:    s.latest,
		TargetVersion:    s.opts.Version,
	}
	prev := s.snap.Swap(&snap)
	if prev == nil || prev.State.Kind != snap.State.Kind {
		s.logger.Info("session state changed", "state", snap.State.Kind.String(), "seq", snap.Seq)
	}

	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	eventbus.Emit(context.Background(), s.bus, domain.EventSessionStateChanged, snap)
}

// IsTerminal reports whether a snapshot is an outcome of a flash attempt.
func IsTerminal(snap domain.Snapshot) bool {
	return snap.State.Kind == domain.StateComplete || snap.State.Kind == domain.StateFailed
}

// ErrorOf converts a Failed snapshot into an error carrying its message.
func ErrorOf(snap domain.Snapshot) error {
	if snap.State.Kind != domain.StateFailed {
		return nil
	}
	return errors.Join(domain.ErrExecutionFailed, errors.New(snap.State.Message))
}
