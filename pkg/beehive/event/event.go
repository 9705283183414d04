package event

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Event is an immutable routing envelope.
// The zero value is not a valid event; use New, From or Poison.
type Event struct {
	data      any
	topic     string
	createdAt time.Time
	id        uint64
	poison    bool
}

// Key is the comparable identity of an Event.
// Two events are equal iff their keys are equal.
type Key struct {
	ID    uint64
	Topic string
}

// Option configures event creation.
type Option func(*options)

type options struct {
	topic        string
	topicSet     bool
	createdAt    time.Time
	createdAtSet bool
}

// WithTopic sets the event topic. An empty topic means "no topic".
func WithTopic(topic string) Option {
	return func(o *options) {
		o.topic = topic
		o.topicSet = true
	}
}

// WithCreatedAt sets the creation timestamp (default: time.Now()).
// Overriding the timestamp of a copied event recomputes its identity.
func WithCreatedAt(t time.Time) Option {
	return func(o *options) {
		o.createdAt = t
		o.createdAtSet = true
	}
}

// New creates an event for the given payload.
//
// If data is itself an Event, New behaves like From: the result is a copy
// that keeps the original identity unless the timestamp is overridden.
func New(data any, opts ...Option) Event {
	if src, ok := data.(Event); ok {
		return From(src, opts...)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	createdAt := o.createdAt
	if !o.createdAtSet || createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.Round(0)

	return Event{
		data:      data,
		topic:     o.topic,
		createdAt: createdAt,
		id:        ComputeID(data, createdAt),
	}
}

// From copies an existing event.
//
// Without options the copy is structurally identical. WithTopic replaces the
// topic and keeps the identity. WithCreatedAt replaces the timestamp and
// recomputes the identity.
func From(src Event, opts ...Option) Event {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ev := src
	if o.topicSet {
		ev.topic = o.topic
	}
	if o.createdAtSet && !o.createdAt.IsZero() {
		ev.createdAt = o.createdAt.Round(0)
		ev.id = ComputeID(ev.data, ev.createdAt)
	}
	return ev
}

// Poison returns the sentinel event that tears down every listener it reaches.
// Poison is never filtered and carries no payload.
func Poison() Event {
	now := time.Now().Round(0)
	return Event{
		createdAt: now,
		id:        ComputeID(nil, now),
		poison:    true,
	}
}

// ComputeID derives the identity of a payload created at a given instant.
// The result is stable across processes for payloads with the same
// textual representation.
func ComputeID(data any, createdAt time.Time) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(fmt.Sprint(data))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt.UnixNano()))
	_, _ = d.Write(ts[:])
	return d.Sum64()
}

// Data returns the payload.
func (e Event) Data() any {
	return e.data
}

// Topic returns the topic, or "" when the event has none.
func (e Event) Topic() string {
	return e.topic
}

// HasTopic reports whether the event carries a topic.
func (e Event) HasTopic() bool {
	return e.topic != ""
}

// CreatedAt returns the creation timestamp.
func (e Event) CreatedAt() time.Time {
	return e.createdAt
}

// ID returns the derived identity.
func (e Event) ID() uint64 {
	return e.id
}

// IsPoison reports whether e is the poison sentinel.
func (e Event) IsPoison() bool {
	return e.poison
}

// IsZero reports whether e is the zero value (never constructed).
func (e Event) IsZero() bool {
	return !e.poison && e.createdAt.IsZero() && e.id == 0
}

// Key returns the comparable identity of the event.
func (e Event) Key() Key {
	return Key{ID: e.id, Topic: e.topic}
}

// Equal reports whether two events have the same identity and topic.
// It agrees with comparing Keys.
func (e Event) Equal(other Event) bool {
	return e.id == other.id && e.topic == other.topic
}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e.poison {
		return fmt.Sprintf("Event(created_at=%d, poison)", e.createdAt.Unix())
	}
	data := fmt.Sprint(e.data)
	if len(data) > 100 {
		data = data[:100]
	}
	return fmt.Sprintf("Event(created_at=%d, data=%s)", e.createdAt.Unix(), data)
}
