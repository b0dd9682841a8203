// Package usb watches for the target device in its recovery (EDL) mode.
package usb

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
	"qflasher/internal/usecase/eventbus"
)

// Notification is a raw hotplug signal from the OS. It says that some USB
// device came or went, not which one.
type Notification int

const (
	Arrived Notification = iota
	Departed
)

func (n Notification) String() string {
	if n == Departed {
		return "departed"
	}
	return "arrived"
}

// Enumerator counts attached devices matching a vendor/product pair.
type Enumerator interface {
	Count(vendorID, productID uint16) (int, error)
}

// Watcher delivers hotplug notifications until closed.
type Watcher interface {
	Notifications() <-chan Notification
	Close() error
}

// Monitor publishes whether the target device is attached. All state
// changes happen on one goroutine; hotplug callbacks and the rescan timer
// only hand messages to it.
type Monitor struct {
	cfg        config.DeviceConfig
	enum       Enumerator
	newWatcher func() (Watcher, error)
	bus        domain.EventBus
	logger     *slog.Logger

	present  atomic.Bool
	updates  chan bool
	rescanCh chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewMonitor creates a Monitor. bus may be nil.
func NewMonitor(cfg config.DeviceConfig, enum Enumerator, newWatcher func() (Watcher, error), bus domain.EventBus, logger *slog.Logger) *Monitor {
	if cfg.RescanDelay <= 0 {
		cfg.RescanDelay = 500 * time.Millisecond
	}
	return &Monitor{
		cfg:        cfg,
		enum:       enum,
		newWatcher: newWatcher,
		bus:        bus,
		logger:     logger,
		updates:    make(chan bool, 8),
		rescanCh:   make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins watching for hotplug events, then scans synchronously for the
// device. Watching first means an arrival during the scan is not lost. The
// watch runs until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	w, err := m.newWatcher()
	if err != nil {
		return domain.NewSubSystemError("usb", "Monitor.Start", domain.ErrDisabled, err.Error())
	}

	n, err := m.enum.Count(m.cfg.VendorID, m.cfg.ProductID)
	if err != nil {
		w.Close()
		return err
	}
	m.present.Store(n > 0)
	m.logger.Info("device scan", "present", n > 0, "vendor_id", m.cfg.VendorID, "product_id", m.cfg.ProductID)

	if !m.started.CompareAndSwap(false, true) {
		w.Close()
		return nil
	}
	go m.loop(ctx, w)
	return nil
}

// Present reports the last published presence.
func (m *Monitor) Present() bool { return m.present.Load() }

// Updates delivers each change of Present. It is never closed.
func (m *Monitor) Updates() <-chan bool { return m.updates }

// Stop releases the watcher. Safe to call repeatedly and before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *Monitor) loop(ctx context.Context, w Watcher) {
	defer close(m.done)
	defer w.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return

		case n, ok := <-w.Notifications():
			if !ok {
				m.logger.Warn("device watcher closed")
				return
			}
			switch n {
			case Arrived:
				if m.count() > 0 {
					m.set(true)
				}
			case Departed:
				// The device re-enumerates while switching modes; only the
				// settled state after the delay is published.
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(m.cfg.RescanDelay, func() {
					select {
					case m.rescanCh <- struct{}{}:
					default:
					}
				})
			}

		case <-m.rescanCh:
			m.set(m.count() > 0)
		}
	}
}

func (m *Monitor) count() int {
	n, err := m.enum.Count(m.cfg.VendorID, m.cfg.ProductID)
	if err != nil {
		m.logger.Warn("device enumeration failed", "error", err)
		return 0
	}
	return n
}

func (m *Monitor) set(present bool) {
	if m.present.Swap(present) == present {
		return
	}
	m.logger.Info("device presence changed", "present", present)

	eventType := domain.EventDeviceDisconnected
	if present {
		eventType = domain.EventDeviceConnected
	}
	eventbus.Emit(context.Background(), m.bus, eventType, map[string]any{
		"vendor_id":  m.cfg.VendorID,
		"product_id": m.cfg.ProductID,
	})

	select {
	case m.updates <- present:
	case <-m.stopCh:
	}
}
