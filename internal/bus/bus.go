// Package bus is the in-process event fabric between the ingest pipeline and
// its consumers. Multiple clients subscribe to a topic and each receives the
// published events on its own channel; publishers are never blocked by slow
// subscribers.
package bus

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/emberwatch/fireline/internal/monitoring"
)

// Well-known topics.
const (
	TopicDetections = "detections"
	TopicMissions   = "missions"
	TopicAlerts     = "alerts"
)

// DefaultBuffer is the per-subscriber channel depth. A subscriber further
// behind than this starts losing events.
const DefaultBuffer = 64

// ValidationError reports a publish rejected by the topic's validator.
type ValidationError struct {
	Topic string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event on topic %q: %v", e.Topic, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validator inspects an event synchronously before fan-out.
type Validator func(event any) error

// DropHandler observes events lost to a full subscriber channel.
type DropHandler func(topic, subscriberID string, event any)

// Bus fans events out per topic. Delivery is at-most-once and in publish
// order per subscriber; there is no persistence or replay.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]map[string]chan any
	validators  map[string]Validator
	onDrop      DropHandler
	buffer      int
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer overrides the per-subscriber channel depth.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithDropHandler installs a hook invoked when a subscriber loses an event.
// The hook runs with the bus lock held and must not call back into the bus.
func WithDropHandler(fn DropHandler) Option {
	return func(b *Bus) { b.onDrop = fn }
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string]map[string]chan any),
		validators:  make(map[string]Validator),
		buffer:      DefaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// randomID generates a random subscriber ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel receiving events published to topic. The
// returned ID identifies the channel when unsubscribing.
func (b *Bus) Subscribe(topic string) (string, <-chan any) {
	id := randomID()
	ch := make(chan any, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[string]chan any)
	}
	b.subscribers[topic][id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[topic][id]; ok {
		close(ch)
		delete(b.subscribers[topic], id)
	}
}

// SetValidator installs a synchronous predicate for a topic. A nil fn
// removes the existing validator.
func (b *Bus) SetValidator(topic string, fn Validator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.validators, topic)
		return
	}
	b.validators[topic] = fn
}

// Publish validates the event and fans it out to the topic's subscribers.
// The lock is held across the fan-out, so a concurrent subscription change
// sees either the whole event or none of it and channels cannot close
// mid-delivery. Sends never block: a full subscriber channel drops the
// event instead of stalling the publisher.
func (b *Bus) Publish(topic string, event any) error {
	b.mu.Lock()
	validate := b.validators[topic]
	b.mu.Unlock()

	if validate != nil {
		if err := validate(event); err != nil {
			return &ValidationError{Topic: topic, Err: err}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers[topic] {
		select {
		case ch <- event:
		default:
			monitoring.Debugf("bus: dropped event on topic %q for subscriber %s", topic, id)
			if b.onDrop != nil {
				b.onDrop(topic, id, event)
			}
		}
	}
	return nil
}

// SubscriberCount reports the number of active subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[topic])
}

// Close closes every subscriber channel and empties the bus.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subscribers, topic)
	}
}
