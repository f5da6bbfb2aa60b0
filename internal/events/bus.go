// Package events carries alarm lifecycle events from the engine to observers such as the audit log.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	EventAlarmFired      EventType = "alarm_fired"
	EventReminderFired   EventType = "reminder_fired"
	EventEpisodeStarted  EventType = "episode_started"
	EventAlarmSnoozed    EventType = "alarm_snoozed"
	EventAlarmResumed    EventType = "alarm_resumed"
	EventAlarmDismissed  EventType = "alarm_dismissed"
	EventDismissRejected EventType = "dismiss_rejected"
	EventStoreRecovered  EventType = "store_recovered"
)

// LifecycleEvents lists every event type the engine publishes.
var LifecycleEvents = []EventType{
	EventAlarmFired,
	EventReminderFired,
	EventEpisodeStarted,
	EventAlarmSnoozed,
	EventAlarmResumed,
	EventAlarmDismissed,
	EventDismissRejected,
	EventStoreRecovered,
}

type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

type Subscriber func(Event)

// Publisher is the narrow interface engine components publish through.
type Publisher interface {
	Publish(eventType EventType, data map[string]any)
}

// Bus is a non-blocking publish/subscribe bus. Each subscriber has its own
// buffered channel; when it is full the event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	dropped     atomic.Int64
	now         func() time.Time
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		now:         time.Now,
	}
}

// Subscribe registers fn for eventType and returns an unsubscribe function.
// fn runs on a dedicated goroutine; a panic in fn is recovered.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// SubscribeAll registers fn for each of the given types.
func (b *Bus) SubscribeAll(types []EventType, fn Subscriber) func() {
	unsubs := make([]func(), 0, len(types))
	for _, et := range types {
		unsubs = append(unsubs, b.Subscribe(et, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (b *Bus) Publish(eventType EventType, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: b.now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were dropped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
