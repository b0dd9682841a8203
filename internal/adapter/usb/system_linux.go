package usb

import (
	"log/slog"

	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
)

// NewSystemMonitor watches sysfs and /dev/bus/usb for the configured device.
func NewSystemMonitor(cfg config.DeviceConfig, bus domain.EventBus, logger *slog.Logger) *Monitor {
	enum := SysfsEnumerator{Root: cfg.SysfsRoot}
	newWatcher := func() (Watcher, error) { return NewFsWatcher(cfg.DevRoot, logger) }
	return NewMonitor(cfg, enum, newWatcher, bus, logger)
}
