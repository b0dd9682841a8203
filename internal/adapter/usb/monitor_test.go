package usb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
	"qflasher/internal/infra/logger"
)

type fakeEnumerator struct {
	n     atomic.Int32
	calls atomic.Int32
	err   error
}

func (f *fakeEnumerator) Count(vendorID, productID uint16) (int, error) {
	f.calls.Add(1)
	if vendorID != 0x05C6 || productID != 0x9008 {
		return 0, nil
	}
	return int(f.n.Load()), f.err
}

type fakeWatcher struct {
	ch     chan Notification
	closed atomic.Int32
}

func newFakeWatcher() *fakeWatcher { return &fakeWatcher{ch: make(chan Notification, 4)} }

func (w *fakeWatcher) Notifications() <-chan Notification { return w.ch }
func (w *fakeWatcher) Close() error {
	w.closed.Add(1)
	return nil
}

// recordingBus captures published event types.
type recordingBus struct {
	mu    sync.Mutex
	types []domain.EventType
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, e.Type)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()               { return func() {} }
func (b *recordingBus) Close()                                                {}

func (b *recordingBus) Types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.EventType(nil), b.types...)
}

func testDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{VendorID: 0x05C6, ProductID: 0x9008, RescanDelay: 50 * time.Millisecond}
}

func startMonitor(t *testing.T, enum *fakeEnumerator, bus domain.EventBus) (*Monitor, *fakeWatcher) {
	t.Helper()
	w := newFakeWatcher()
	m := NewMonitor(testDeviceConfig(), enum, func() (Watcher, error) { return w, nil }, bus, logger.Discard())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m, w
}

func expectUpdate(t *testing.T, m *Monitor, want bool) {
	t.Helper()
	select {
	case got := <-m.Updates():
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("no presence update, want %v", want)
	}
}

func expectNoUpdate(t *testing.T, m *Monitor, within time.Duration) {
	t.Helper()
	select {
	case got := <-m.Updates():
		t.Fatalf("unexpected presence update %v", got)
	case <-time.After(within):
	}
}

func TestMonitorInitialScan(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.n.Store(1)
	m, _ := startMonitor(t, enum, nil)

	assert.True(t, m.Present())
	expectNoUpdate(t, m, 50*time.Millisecond)
}

func TestMonitorArrival(t *testing.T) {
	enum := &fakeEnumerator{}
	bus := &recordingBus{}
	m, w := startMonitor(t, enum, bus)
	require.False(t, m.Present())

	enum.n.Store(1)
	w.ch <- Arrived
	expectUpdate(t, m, true)
	assert.True(t, m.Present())
	assert.Equal(t, []domain.EventType{domain.EventDeviceConnected}, bus.Types())
}

func TestMonitorArrivalOfOtherDevice(t *testing.T) {
	enum := &fakeEnumerator{}
	m, w := startMonitor(t, enum, nil)

	w.ch <- Arrived // some unrelated device
	expectNoUpdate(t, m, 50*time.Millisecond)
	assert.False(t, m.Present())
}

func TestMonitorTransientRemovalDoesNotFlicker(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.n.Store(1)
	m, w := startMonitor(t, enum, nil)

	w.ch <- Departed
	expectNoUpdate(t, m, 150*time.Millisecond)
	assert.True(t, m.Present())
	assert.GreaterOrEqual(t, enum.calls.Load(), int32(2), "rescan must run after the delay")
}

func TestMonitorRemovalDebounced(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.n.Store(1)
	m, w := startMonitor(t, enum, nil)

	enum.n.Store(0)
	w.ch <- Departed
	w.ch <- Departed
	assert.True(t, m.Present(), "removal is not published before the rescan")
	expectUpdate(t, m, false)
	expectNoUpdate(t, m, 100*time.Millisecond)
}

func TestMonitorStartEnumerationError(t *testing.T) {
	enum := &fakeEnumerator{err: domain.NewSubSystemError("usb", "Enumerator.Count", domain.ErrDisabled, "darwin")}
	m := NewMonitor(testDeviceConfig(), enum, func() (Watcher, error) { return newFakeWatcher(), nil }, nil, logger.Discard())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.CodeDeviceUnsupported, domain.ErrorCodeOf(err))
	m.Stop()
}

func TestMonitorWatchesBeforeInitialScan(t *testing.T) {
	enum := &fakeEnumerator{}
	w := newFakeWatcher()
	var callsAtWatch int32 = -1
	m := NewMonitor(testDeviceConfig(), enum, func() (Watcher, error) {
		callsAtWatch = enum.calls.Load()
		return w, nil
	}, nil, logger.Discard())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)

	assert.Equal(t, int32(0), callsAtWatch)
	assert.Equal(t, int32(1), enum.calls.Load())

	// a device that shows up right after the scan is still reported
	enum.n.Store(1)
	w.ch <- Arrived
	expectUpdate(t, m, true)
}

func TestMonitorClosesWatcherWhenScanFails(t *testing.T) {
	enum := &fakeEnumerator{err: domain.NewSubSystemError("usb", "Enumerator.Count", domain.ErrDisabled, "darwin")}
	w := newFakeWatcher()
	m := NewMonitor(testDeviceConfig(), enum, func() (Watcher, error) { return w, nil }, nil, logger.Discard())

	require.Error(t, m.Start(context.Background()))
	assert.Equal(t, int32(1), w.closed.Load())
	m.Stop()
}

func TestMonitorWatcherError(t *testing.T) {
	enum := &fakeEnumerator{}
	m := NewMonitor(testDeviceConfig(), enum, func() (Watcher, error) { return nil, errors.New("inotify limit") }, nil, logger.Discard())

	err := m.Start(context.Background())
	assert.True(t, errors.Is(err, domain.ErrDisabled))
}

func TestMonitorStopIdempotent(t *testing.T) {
	m := NewMonitor(testDeviceConfig(), &fakeEnumerator{}, func() (Watcher, error) { return newFakeWatcher(), nil }, nil, logger.Discard())
	m.Stop() // before Start

	enum := &fakeEnumerator{}
	started, w := startMonitor(t, enum, nil)
	started.Stop()
	started.Stop()
	assert.Equal(t, int32(1), w.closed.Load())
}

func TestMonitorStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := newFakeWatcher()
	m := NewMonitor(testDeviceConfig(), &fakeEnumerator{}, func() (Watcher, error) { return w, nil }, nil, logger.Discard())
	require.NoError(t, m.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return w.closed.Load() == 1 }, time.Second, 10*time.Millisecond)
	m.Stop()
}
