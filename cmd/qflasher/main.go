package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"qflasher/internal/adapter/tui/flasher"
	"qflasher/internal/infra/config"
	"qflasher/internal/infra/logger"
	"qflasher/internal/infra/tracer"
)

const defaultConfigFile = "qflasher.yaml"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runTUI(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	args := commandArgs(os.Args[2:])
	switch os.Args[1] {
	case "tui":
		if err := runTUI(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "flash":
		if err := runFlash(args); err != nil {
			fmt.Fprintf(os.Stderr, "flash: %v\n", err)
			os.Exit(exitCode(err))
		}
	case "versions":
		if err := runVersions(args); err != nil {
			fmt.Fprintf(os.Stderr, "versions: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'qflasher --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`qflasher - Arduino UNO Q recovery and flash tool

USAGE:
    qflasher [COMMAND] [FLAGS]

COMMANDS:
    tui                 Guided flashing in the terminal (default)
    flash [VERSION]     Flash without the full-screen UI
                        Flags: -y/--yes skip the jumper prompt
    versions            List available images
                        Flags: --json print the raw list
    doctor              Check the flasher, disk space and USB access

FLAGS:
    -h, --help          Show this help message
    --config PATH       Config file (default: ./qflasher.yaml)

CONFIGURATION:
    Config file: ./qflasher.yaml (optional)
    Environment: QFLASHER_* variables override config

EXAMPLES:
    qflasher                     # Guided flash of the latest image
    qflasher flash 1.2.0 --yes   # Flash a specific image headlessly
    qflasher versions --json     # Machine-readable image list
    qflasher doctor              # Check your setup`)
}

// configPath resolves --config, then QFLASHER_CONFIG, then the default.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("QFLASHER_CONFIG"); p != "" {
		return p
	}
	return defaultConfigFile
}

// commandArgs strips the global --config flag from a subcommand's args.
func commandArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			i++
		case strings.HasPrefix(args[i], "--config="):
		default:
			out = append(out, args[i])
		}
	}
	return out
}

func runTUI() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Anything written to the terminal would corrupt the screen.
	log, logCloser, err := logger.ForTerminalUI(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerCfg := cfg.Tracer
	if tracerCfg.Exporter == "stdout" || tracerCfg.Exporter == "stderr" {
		log.Warn("terminal tracer exporter disabled in the TUI", "exporter", tracerCfg.Exporter)
		tracerCfg.Enabled = false
	}
	tracerShutdown, err := tracer.Setup(ctx, tracerCfg)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	a := newApp(ctx, cfg, log)
	defer a.Close()

	log.Info("qflasher starting", "mode", "tui", "version", cfg.Flasher.Version, "hotplug", a.hotplug)

	model := flasher.New(flasher.Deps{Context: ctx, Session: a.session, Events: a.bus})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
