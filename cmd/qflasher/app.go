package main

import (
	"context"
	"log/slog"

	"qflasher/internal/adapter/diskspace"
	"qflasher/internal/adapter/flashercli"
	"qflasher/internal/adapter/usb"
	"qflasher/internal/infra/config"
	"qflasher/internal/usecase/eventbus"
	"qflasher/internal/usecase/flash"
	"qflasher/internal/usecase/process"
)

// app holds the components shared by every command that flashes.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	bus     *eventbus.Bus
	client  *flashercli.Client
	monitor *usb.Monitor
	session *flash.Session
	hotplug bool // device arrival is detected automatically
}

// newToolClient wires the process runner and executable resolver. bus may
// be nil for one-shot commands.
func newToolClient(cfg *config.Config, bus *eventbus.Bus, log *slog.Logger) *flashercli.Client {
	runnerCfg := process.RunnerConfig{KillGrace: cfg.Flasher.KillGrace}
	var runner *process.Runner
	if bus != nil {
		runner = process.NewRunner(runnerCfg, bus, log)
	} else {
		runner = process.NewRunner(runnerCfg, nil, log)
	}
	return flashercli.NewClient(runner, flashercli.NewResolver(cfg.Flasher), cfg.Flasher.ListTimeout, log)
}

// newApp builds and starts the device monitor and flash session. A monitor
// that cannot start is logged; flashing then has to be started by hand.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) *app {
	bus := eventbus.New(log)
	client := newToolClient(cfg, bus, log)

	monitor := usb.NewSystemMonitor(cfg.Device, bus, log)
	hotplug := true
	if err := monitor.Start(ctx); err != nil {
		log.Warn("device hotplug detection unavailable", "error", err)
		hotplug = false
	}

	session := flash.NewSession(client, client, diskspace.Prober{}, monitor, bus, log, flash.Options{
		Version:       cfg.Flasher.Version,
		DiskPath:      cfg.Flasher.DiskPath,
		RequiredBytes: cfg.Flasher.RequiredDiskBytes,
		ReleaseWait:   cfg.Flasher.FinishWait,
	})
	session.Start(ctx)

	return &app{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		client:  client,
		monitor: monitor,
		session: session,
		hotplug: hotplug,
	}
}

// Close stops the session first so a running tool is killed before the
// monitor and bus go away.
func (a *app) Close() {
	a.session.Close()
	a.monitor.Stop()
	a.bus.Close()
}
