// Package event provides the immutable Event value that flows through a hive.
//
// An Event carries an opaque payload, an optional topic used for filtering,
// a creation timestamp and an identity derived from the payload and the
// timestamp. Events are compared by identity and topic, never by payload.
//
// Design Influences:
//   - Kafka records (opaque payload, topic-based routing)
//   - Content-addressed identity (id = H(data, created_at))
//
// # Identity
//
// Every event has an identity computed from its payload and creation time:
//
//	id = xxhash(fmt.Sprint(data) || created_at_unix_nanos)
//
// Two events are equal when their identity and topic match. Copying an event
// with From keeps its identity; only overriding the creation time recomputes
// it:
//
//	a := event.New("reading", event.WithTopic("sensor"))
//	b := event.From(a, event.WithTopic("archive")) // same ID, new topic
//	c := event.From(a, event.WithCreatedAt(time.Now())) // new ID
//
// # Poison
//
// Poison returns a sentinel event. Listeners never filter it out; it is
// propagated through the whole chain graph and tears down every listener it
// reaches, each exactly once.
//
// # Wire Format
//
// Marshal and Unmarshal use msgpack and carry payload, payload type name,
// topic, creation time and identity. Payloads of a registered type decode
// back into that type; builtin scalars, []byte, time values and common
// slices and maps are registered already. Application types are registered
// once on both ends, like gob:
//
//	type Reading struct{ Sensor string; Value float64 }
//
//	func init() { event.RegisterPayload(Reading{}) }
//
// Unregistered types fall back to generic values (int64, float64,
// map[string]any). The identity is preserved either way because it travels
// on the wire instead of being recomputed.
package event
