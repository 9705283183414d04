package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ugorji/go/codec"
)

// ErrDecode indicates that bytes could not be decoded into an Event.
var ErrDecode = errors.New("decode event")

// wireEvent is the msgpack layout of an Event.
// Type names the payload's Go type so the receiver can restore it.
type wireEvent struct {
	Data      any    `codec:"d"`
	Type      string `codec:"y,omitempty"`
	Topic     string `codec:"t,omitempty"`
	CreatedAt int64  `codec:"c"`
	ID        uint64 `codec:"i"`
	Poison    bool   `codec:"p,omitempty"`
}

// rawWireEvent defers payload decoding until its type is known.
type rawWireEvent struct {
	Data      codec.Raw `codec:"d"`
	Type      string    `codec:"y,omitempty"`
	Topic     string    `codec:"t,omitempty"`
	CreatedAt int64     `codec:"c"`
	ID        uint64    `codec:"i"`
	Poison    bool      `codec:"p,omitempty"`
}

var msgpackHandle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	// str decodes as string and bin as []byte.
	h.WriteExt = true
	h.SignedInteger = true
	h.MapType = reflect.TypeOf(map[string]any(nil))
	return h
}

var (
	payloadMu    sync.RWMutex
	payloadTypes = make(map[string]reflect.Type)
)

func init() {
	for _, sample := range []any{
		false, "", []byte(nil),
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0),
		time.Time{}, time.Duration(0),
		[]string(nil), []int(nil), []int64(nil), []float64(nil), []bool(nil), []any(nil),
		map[string]any(nil), map[string]string(nil), map[string]int(nil),
		map[string]int64(nil), map[string]float64(nil),
	} {
		RegisterPayload(sample)
	}
}

// RegisterPayload records the type of sample so payloads of that type
// decode back into it instead of generic maps and slices. Builtin scalars,
// time values and common slices and maps are registered already.
//
// Both ends of a socket must register the same types. RegisterPayload
// panics if a different type is already registered under the same name.
func RegisterPayload(sample any) {
	if sample == nil {
		panic("event: RegisterPayload of nil")
	}
	t := reflect.TypeOf(sample)
	name := typeName(t)

	payloadMu.Lock()
	defer payloadMu.Unlock()
	if prev, ok := payloadTypes[name]; ok && prev != t {
		panic(fmt.Sprintf("event: registering duplicate types for %q: %s != %s", name, prev, t))
	}
	payloadTypes[name] = t
}

func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func lookupPayload(name string) (reflect.Type, bool) {
	payloadMu.RLock()
	defer payloadMu.RUnlock()
	t, ok := payloadTypes[name]
	return t, ok
}

// Marshal encodes an event into its wire representation.
// The payload must be encodable by msgpack. Application types are encoded
// by their exported fields; see RegisterPayload for decoding them back.
func Marshal(e Event) ([]byte, error) {
	w := wireEvent{
		Data:      e.data,
		Topic:     e.topic,
		CreatedAt: e.createdAt.UnixNano(),
		ID:        e.id,
		Poison:    e.poison,
	}
	if e.data != nil {
		w.Type = typeName(reflect.TypeOf(e.data))
	}

	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(&w); err != nil {
		return nil, fmt.Errorf("encode event %d: %w", e.id, err)
	}
	return out, nil
}

// Unmarshal decodes bytes produced by Marshal.
// Topic, creation time and identity are restored exactly. The payload keeps
// its Go type when that type is registered; otherwise integers decode as
// int64, floats as float64, and maps and structs as map[string]any.
func Unmarshal(b []byte) (Event, error) {
	if len(b) == 0 {
		return Event{}, fmt.Errorf("%w: empty message", ErrDecode)
	}

	var w rawWireEvent
	if err := codec.NewDecoderBytes(b, msgpackHandle).Decode(&w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	data, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return Event{}, fmt.Errorf("%w: payload %s: %v", ErrDecode, w.Type, err)
	}

	return Event{
		data:      data,
		topic:     w.Topic,
		createdAt: time.Unix(0, w.CreatedAt),
		id:        w.ID,
		poison:    w.Poison,
	}, nil
}

func decodePayload(name string, raw codec.Raw) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if t, ok := lookupPayload(name); ok {
		v := reflect.New(t)
		if err := codec.NewDecoderBytes(raw, msgpackHandle).Decode(v.Interface()); err != nil {
			return nil, err
		}
		return v.Elem().Interface(), nil
	}

	var v any
	if err := codec.NewDecoderBytes(raw, msgpackHandle).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
