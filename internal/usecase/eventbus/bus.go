// Package eventbus fans domain events out to in-process subscribers.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"qflasher/internal/domain"
)

// allEvents keys the subscriptions that receive every event type.
const allEvents domain.EventType = ""

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Every handler runs in its
// own goroutine, so delivery order across publishes is not guaranteed.
// Consumers that care about order use the Seq carried in the payload.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventType][]subscription
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Publish fans out an event to matching typed subscribers and all-event
// subscribers. Panicking handlers are recovered and logged.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs[event.Type])+len(b.subs[allEvents]))
	targets = append(targets, b.subs[event.Type]...)
	targets = append(targets, b.subs[allEvents]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.dispatch(ctx, event, sub)
	}
}

// Emit marshals payload and publishes it as eventType.
func (b *Bus) Emit(ctx context.Context, eventType domain.EventType, payload any) {
	Emit(ctx, b, eventType, payload)
}

// Emit publishes payload on any domain.EventBus. A nil bus is a no-op.
func Emit(ctx context.Context, bus domain.EventBus, eventType domain.EventType, payload any) {
	if bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   data,
	})
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(allEvents, handler)
}

// Channel subscribes to the given types (all types when none are given)
// and delivers events into a buffered channel. Events are dropped when the
// buffer is full. The returned function unsubscribes; the channel is never
// closed.
func (b *Bus) Channel(size int, types ...domain.EventType) (<-chan domain.Event, func()) {
	if size <= 0 {
		size = 16
	}
	ch := make(chan domain.Event, size)
	deliver := func(_ context.Context, e domain.Event) {
		select {
		case ch <- e:
		default:
			b.logger.Debug("event dropped, subscriber full", "event", string(e.Type))
		}
	}

	if len(types) == 0 {
		return ch, b.SubscribeAll(deliver)
	}
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, b.Subscribe(t, deliver))
	}
	return ch, func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
