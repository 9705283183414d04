package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnknownChain indicates a chain names a listener that is not registered.
	ErrUnknownChain = errors.New("chain target not registered")

	// ErrInvalidFilter indicates an empty topic in a filter set.
	ErrInvalidFilter = errors.New("filter topics must be non-empty")

	// ErrInvalidChain indicates an empty listener name in a chain.
	ErrInvalidChain = errors.New("chain names must be non-empty")

	// ErrNotBound indicates a streamer was run without an output queue.
	ErrNotBound = errors.New("streamer has no output queue")

	// ErrQueueClosed indicates a push to a closed queue.
	ErrQueueClosed = errors.New("queue closed")

	// ErrWouldBlock indicates a non-blocking socket operation could not proceed.
	ErrWouldBlock = errors.New("operation would block")

	// ErrNotConnected indicates a client has no live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed indicates use of a shut-down server, client or hive.
	ErrClosed = errors.New("closed")

	// ErrFrameTooLarge indicates a message exceeding the frame size limit.
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
)

// TransformError is a failure inside a listener's OnEvent.
// Propagation from the failing node stops; the rest of the graph continues.
type TransformError struct {
	Listener string
	EventID  uint64
	Err      error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	return fmt.Sprintf("listener %s: transform event %d: %v", e.Listener, e.EventID, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransformError) Unwrap() error {
	return e.Err
}

// ProductionError is a failure inside a streamer's source.
// The current production cycle ends; the restart policy decides what follows.
type ProductionError struct {
	Streamer string
	Err      error
}

// Error implements the error interface.
func (e *ProductionError) Error() string {
	return fmt.Sprintf("streamer %s: produce: %v", e.Streamer, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProductionError) Unwrap() error {
	return e.Err
}

// Phase names a lifecycle hook.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseTeardown Phase = "teardown"
)

// LifecycleError is a failure inside a setup or teardown hook.
type LifecycleError struct {
	Node  string
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Node, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// ConfigurationError is an invalid registration or setting.
// It is reported at registration time, before any state changes.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("configuration error on %s: %s", e.Field, msg)
	}
	return fmt.Sprintf("configuration error: %s", msg)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportError is a socket failure.
// Temporary errors are retried by the client.
type TransportError struct {
	Op        string
	Addr      string
	Temporary bool
	Err       error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// PreconditionError is an invalid argument to a hive operation.
type PreconditionError struct {
	Op      string
	Message string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// PanicError is a recovered panic from user code.
type PanicError struct {
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
