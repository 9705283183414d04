package bee

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStop may be returned by a Source to end its streamer regardless of
// the restart policy. It is not reported as a failure.
var ErrStop = errors.New("stop streaming")

// Action is what a streamer does when a production cycle ends.
type Action int

const (
	// Restart acquires a fresh sequence from the source.
	Restart Action = iota

	// Stop ends the streamer's run loop.
	Stop
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Restart:
		return "restart"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// ParseAction converts "restart" or "stop" to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "restart":
		return Restart, nil
	case "stop":
		return Stop, nil
	default:
		return Restart, fmt.Errorf("unknown restart action %q", s)
	}
}

// RestartPolicy decides what follows the end of a production cycle.
type RestartPolicy struct {
	// OnExhausted applies when the source sequence ends normally.
	OnExhausted Action

	// OnError applies when the source returns an error or panics.
	OnError Action
}

// DefaultRestartPolicy restarts after both exhaustion and failure.
var DefaultRestartPolicy = RestartPolicy{OnExhausted: Restart, OnError: Restart}

// RunOnce stops after the first cycle, however it ends.
var RunOnce = RestartPolicy{OnExhausted: Stop, OnError: Stop}

// StopOnError keeps restarting an exhausted source but stops on failure.
var StopOnError = RestartPolicy{OnExhausted: Restart, OnError: Stop}
