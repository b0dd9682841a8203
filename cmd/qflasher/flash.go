package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"qflasher/internal/adapter/flashercli"
	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
	"qflasher/internal/infra/logger"
	"qflasher/internal/infra/tracer"
	"qflasher/internal/usecase/flash"
)

var (
	errCancelled = errors.New("cancelled")
	errAborted   = errors.New("aborted while writing the device")
)

// exitCode maps a flash error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, errCancelled) || errors.Is(err, errAborted) {
		return 130
	}
	return 1
}

type flashOptions struct {
	version    string
	assumeYes  bool
	hotplug    bool
	confirmIn  io.Reader
	out        io.Writer
	interrupts <-chan os.Signal
}

func parseFlashArgs(args []string) (flashOptions, error) {
	var opts flashOptions
	for _, arg := range args {
		switch arg {
		case "-y", "--yes":
			opts.assumeYes = true
		default:
			if len(arg) > 0 && arg[0] == '-' {
				return opts, fmt.Errorf("unknown flag: %s", arg)
			}
			if opts.version != "" {
				return opts, fmt.Errorf("unexpected argument: %s", arg)
			}
			if !flashercli.ValidVersion(arg) {
				return opts, domain.NewDomainError("flash", domain.ErrInvalidInput, "version must be \"latest\" or a semantic version: "+arg)
			}
			opts.version = arg
		}
	}
	return opts, nil
}

func runFlash(args []string) error {
	opts, err := parseFlashArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if opts.version != "" {
		cfg.Flasher.Version = opts.version
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a := newApp(ctx, cfg, log)
	defer a.Close()

	opts.hotplug = a.hotplug
	opts.confirmIn = os.Stdin
	opts.out = os.Stdout
	opts.interrupts = sigs
	return flashHeadless(ctx, a.session, opts)
}

// headlessSession is the part of flash.Session the headless command drives.
type headlessSession interface {
	Snapshot() domain.Snapshot
	Watch() (<-chan domain.Snapshot, func())
	BeginSetup() error
	ConfirmJumper() error
	StartFlashing() error
	Cancel() error
}

// flashHeadless walks the session through setup and prints progress until
// the attempt ends. A first interrupt during an unsafe step only warns; a
// second one aborts.
func flashHeadless(ctx context.Context, s headlessSession, opts flashOptions) error {
	out := opts.out
	watch, stop := s.Watch()
	defer stop()

	if err := s.BeginSetup(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Prepare your board:")
	fmt.Fprintln(out, "  1. Disconnect power from your board")
	fmt.Fprintln(out, "  2. Short the 2 JCTL pins with a jumper")
	fmt.Fprintln(out, "  3. Connect the board via USB to this computer")
	fmt.Fprintln(out, "Keep the jumper connected until flashing completes!")
	if !opts.assumeYes {
		fmt.Fprint(out, "Press Enter to continue...")
		if _, err := bufio.NewReader(opts.confirmIn).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read confirmation: %w", err)
		}
	}

	if err := s.ConfirmJumper(); err != nil {
		return err
	}
	if s.Snapshot().State.Kind == domain.StateAwaitingDevice {
		if opts.hotplug {
			fmt.Fprintln(out, "Waiting for an EDL device...")
		} else {
			// No hotplug detection: trust the user and start.
			if err := s.StartFlashing(); err != nil && s.Snapshot().State.Kind != domain.StateFailed {
				return err
			}
		}
	}

	var last string
	warned := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap := <-watch:
			if line := progressLine(snap); line != "" && line != last {
				fmt.Fprintln(out, line)
				last = line
			}
			if flash.IsTerminal(snap) {
				return flash.ErrorOf(snap)
			}

		case <-opts.interrupts:
			snap := s.Snapshot()
			if snap.State.Kind != domain.StateInProgress || snap.CancellationSafe {
				if err := s.Cancel(); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
					return err
				}
				fmt.Fprintln(out, "Cancelled.")
				return errCancelled
			}
			if warned {
				return errAborted
			}
			warned = true
			fmt.Fprintln(out, "Flashing in progress; interrupting now can leave the board unbootable. Press Ctrl+C again to abort anyway.")
		}
	}
}

// progressLine renders one snapshot for a plain terminal. Setup states
// print nothing.
func progressLine(snap domain.Snapshot) string {
	st := snap.State
	switch st.Kind {
	case domain.StateInProgress:
		return fmt.Sprintf("[%3.0f%%] (%d/%d) %s", st.Percent*100, st.Step.Number(), domain.TotalSteps, st.Message)
	case domain.StateComplete:
		return "[100%] Flash complete! Remove the jumper and reconnect USB; the board will boot into Debian Linux."
	case domain.StateFailed:
		return "Flash failed: " + st.Message
	default:
		return ""
	}
}
