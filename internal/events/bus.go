// Package events is the notification channel between the engine and the
// presentation layer. Handlers run synchronously on the emitting goroutine;
// a panicking handler is isolated and logged.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

type Event string

const (
	ExpenseCreated Event = "expense:created"
	ExpenseUpdated Event = "expense:updated"
	ExpenseDeleted Event = "expense:deleted"
	BudgetUpdated  Event = "budget:updated"

	SyncStarted   Event = "journal:sync_started"
	Synced        Event = "journal:synced"
	SyncFailed    Event = "journal:sync_failed"
	SyncCompleted Event = "journal:sync_completed"
)

type Handler func(payload any)

type subscription struct {
	event   Event
	handler Handler
}

type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]*subscription
	log  zerolog.Logger
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[Event][]*subscription),
		log:  log.With().Str("component", "events").Logger(),
	}
}

// On registers a handler and returns its unsubscribe function.
func (b *Bus) On(event Event, h Handler) (off func()) {
	sub := &subscription{event: event, handler: h}
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()
	return func() { b.remove(sub) }
}

// Once registers a handler that unsubscribes itself after the first delivery.
func (b *Bus) Once(event Event, h Handler) (off func()) {
	var once sync.Once
	var offFn func()
	offFn = b.On(event, func(payload any) {
		once.Do(func() {
			h(payload)
			offFn()
		})
	})
	return offFn
}

func (b *Bus) Emit(event Event, payload any) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[event]))
	copy(subs, b.subs[event])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(event, sub.handler, payload)
	}
}

func (b *Bus) dispatch(event Event, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("event", string(event)).Any("panic", r).Msg("event handler panicked")
		}
	}()
	h(payload)
}

func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[Event][]*subscription)
	b.mu.Unlock()
}

func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[target.event]
	for i, sub := range subs {
		if sub == target {
			b.subs[target.event] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
