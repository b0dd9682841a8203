//go:build !linux

package usb

import (
	"log/slog"
	"runtime"

	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
)

type unsupportedEnumerator struct{}

func (unsupportedEnumerator) Count(uint16, uint16) (int, error) {
	return 0, domain.NewSubSystemError("usb", "Enumerator.Count", domain.ErrDisabled, "device enumeration not supported on "+runtime.GOOS)
}

// NewSystemMonitor returns a monitor whose Start reports that hotplug
// detection is unavailable on this platform.
func NewSystemMonitor(cfg config.DeviceConfig, bus domain.EventBus, logger *slog.Logger) *Monitor {
	newWatcher := func() (Watcher, error) { return NewFsWatcher(cfg.DevRoot, logger) }
	return NewMonitor(cfg, unsupportedEnumerator{}, newWatcher, bus, logger)
}
