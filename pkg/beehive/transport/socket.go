package transport

import (
	"context"
	"iter"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
)

// SocketSource is a bee.Source fed by a Server.
type SocketSource struct {
	bee.Base
	server *Server
}

// NewSocketSource wraps srv. The server is started by Setup and shut down
// by Teardown.
func NewSocketSource(srv *Server) *SocketSource {
	return &SocketSource{server: srv}
}

// NewSocketStreamer returns a streamer publishing what srv receives.
func NewSocketStreamer(name string, srv *Server, opts ...bee.StreamerOption) *bee.Streamer {
	return bee.NewStreamer(name, NewSocketSource(srv), opts...)
}

// Server returns the wrapped server.
func (s *SocketSource) Server() *Server { return s.server }

// Setup implements bee.Hooks.
func (s *SocketSource) Setup(ctx context.Context) error {
	return s.server.Start(ctx)
}

// Teardown implements bee.Hooks.
func (s *SocketSource) Teardown(context.Context) error {
	return s.server.Shutdown()
}

// Stream implements bee.Source. Each received message is decoded and
// yielded with its topic cleared, so the streamer's own topic applies while
// the identity and creation time survive. An empty buffer yields
// bee.Pending. A message that fails to decode ends the cycle with the
// decode error.
func (s *SocketSource) Stream(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for {
			msg, ok := s.server.Poll(sched.PollTimeout(ctx))
			if !ok {
				if s.server.Closed() && s.server.Pending() == 0 {
					return
				}
				if !yield(bee.Pending, nil) {
					return
				}
				continue
			}

			received, err := event.Unmarshal(msg)
			if err != nil {
				yield(nil, &bherrors.TransportError{Op: "decode", Addr: s.server.Addr(), Err: err})
				return
			}
			if !yield(event.From(received, event.WithTopic("")), nil) {
				return
			}
		}
	}
}

// ParseFunc selects what a SocketListener sends for an event.
// A zero event sends nothing.
type ParseFunc func(ctx context.Context, ev event.Event) (event.Event, error)

// SocketListener is a bee.Listener that sends events to a remote Server.
type SocketListener struct {
	name   string
	client *Client
	parse  ParseFunc
}

// NewSocketListener creates a listener sending through cli. A nil parse
// sends every received event unchanged.
func NewSocketListener(name string, cli *Client, parse ParseFunc) *SocketListener {
	if parse == nil {
		parse = func(_ context.Context, ev event.Event) (event.Event, error) { return ev, nil }
	}
	return &SocketListener{name: name, client: cli, parse: parse}
}

// Client returns the wrapped client.
func (l *SocketListener) Client() *Client { return l.client }

// Name implements bee.Listener.
func (l *SocketListener) Name() string { return l.name }

// Setup implements bee.Hooks.
func (l *SocketListener) Setup(ctx context.Context) error {
	return l.client.Connect(ctx)
}

// Teardown implements bee.Hooks.
func (l *SocketListener) Teardown(context.Context) error {
	return l.client.Shutdown()
}

// OnError implements bee.Hooks.
func (l *SocketListener) OnError(context.Context, error) {}

// OnEvent implements bee.Listener. It never forwards to children. A
// message dropped after transient send failures is not an error of the
// listener; encoding failures and permanent send failures are.
func (l *SocketListener) OnEvent(ctx context.Context, ev event.Event) (any, error) {
	out, err := l.parse(ctx, ev)
	if err != nil || out.IsZero() {
		return nil, err
	}

	msg, err := event.Marshal(out)
	if err != nil {
		return nil, err
	}
	if err := l.client.Send(ctx, msg); err != nil && !bherrors.IsRetryable(err) {
		return nil, err
	}
	return nil, nil
}
