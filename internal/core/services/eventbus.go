package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventTypeModeChanged EventType = "mode_changed"
	EventTypeOperation   EventType = "operation"
)

// TopicDispatcher carries process-wide dispatcher events such as mode changes.
const TopicDispatcher = "dispatcher"

type Event struct {
	Topic     string
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

// EventBus fans events out to per-topic subscribers. Slow subscribers lose
// events rather than block publishers.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event // Key: topic
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for one topic
func (b *EventBus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	b.subs[topic] = append(b.subs[topic], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			b.subs[topic] = removeChan(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			close(ch)
		})
	}

	return ch, unsub
}

// Publish sends an event to the topic's subscribers
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.Topic] {
		b.deliver(ch, e)
	}
}

// PublishJSON encodes data as the event payload and stamps the time.
func (b *EventBus) PublishJSON(topic string, typ EventType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("failed to encode event", "topic", topic, "type", string(typ), "error", err)
		return
	}
	b.Publish(Event{Topic: topic, Type: typ, Data: string(raw), Timestamp: time.Now().UnixMilli()})
}

func (b *EventBus) deliver(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		// If channel is full, drop event to prevent blocking application
		b.logger.Warn("event bus channel full, dropping event", "topic", e.Topic, "type", string(e.Type))
	}
}

func removeChan(list []chan Event, ch chan Event) []chan Event {
	for i, sub := range list {
		if sub == ch {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
