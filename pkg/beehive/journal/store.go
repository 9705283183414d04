// Package journal records the node failures a hive isolated while running.
//
// A hive keeps going when a listener, streamer or lifecycle hook fails; the
// failure is reported, logged and, when a Store is configured, appended to
// the journal so it can be inspected after the run. The journal holds
// diagnostics only. Events are never replayed from it.
package journal

import (
	"errors"
	"time"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
)

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends e. Seq is assigned by the store; a zero At is set to
	// the current time.
	Record(e Entry) error

	// List returns every entry of a run ordered by Seq.
	// Returns empty slice (not error) if the run has no entries.
	List(runID string) ([]Entry, error)

	// Count returns the number of entries of a run.
	Count(runID string) (int, error)

	// DeleteRun removes every entry of a run.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Kind classifies an entry by the failure it records.
type Kind string

// Entry kinds.
const (
	KindTransform  Kind = "transform"
	KindProduction Kind = "production"
	KindLifecycle  Kind = "lifecycle"
)

// Entry is one isolated failure.
type Entry struct {
	Seq     int64
	RunID   string
	Kind    Kind
	Node    string
	Phase   string
	EventID uint64
	Error   string
	At      time.Time
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("journal store closed")

// FromError builds the entry describing err.
// ok is false when err is not one of the isolated failure types.
func FromError(runID string, err error) (e Entry, ok bool) {
	var (
		terr *bherrors.TransformError
		perr *bherrors.ProductionError
		lerr *bherrors.LifecycleError
	)

	switch {
	case errors.As(err, &terr):
		e = Entry{Kind: KindTransform, Node: terr.Listener, EventID: terr.EventID}
	case errors.As(err, &perr):
		e = Entry{Kind: KindProduction, Node: perr.Streamer}
	case errors.As(err, &lerr):
		e = Entry{Kind: KindLifecycle, Node: lerr.Node, Phase: string(lerr.Phase)}
	default:
		return Entry{}, false
	}

	e.RunID = runID
	e.Error = err.Error()
	return e, true
}
