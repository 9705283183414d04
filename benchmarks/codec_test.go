package benchmarks

import (
	"testing"
	"time"

	"github.com/randalmurphal/beehive/pkg/beehive/event"
)

// Payload mirrors a small structured sensor reading.
type Payload struct {
	Sensor string
	Value  float64
	Tags   []string
}

func benchPayloads() map[string]any {
	return map[string]any{
		"int":    int64(42),
		"string": "the quick brown fox",
		"bytes":  make([]byte, 1024),
		"struct": Payload{Sensor: "t1", Value: 21.5, Tags: []string{"kitchen", "north"}},
	}
}

// BenchmarkNew measures event creation including identity hashing.
func BenchmarkNew(b *testing.B) {
	for name, data := range benchPayloads() {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				event.New(data)
			}
		})
	}
}

// BenchmarkComputeID measures the identity hash alone.
func BenchmarkComputeID(b *testing.B) {
	now := time.Now()
	for name, data := range benchPayloads() {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				event.ComputeID(data, now)
			}
		})
	}
}

// BenchmarkMarshal measures encoding an event for the wire.
func BenchmarkMarshal(b *testing.B) {
	for name, data := range benchPayloads() {
		ev := event.New(data, event.WithTopic("bench"))
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := event.Marshal(ev); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkUnmarshal measures decoding an event from the wire.
func BenchmarkUnmarshal(b *testing.B) {
	for name, data := range benchPayloads() {
		raw, err := event.Marshal(event.New(data, event.WithTopic("bench")))
		if err != nil {
			b.Fatal(err)
		}
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := event.Unmarshal(raw); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
