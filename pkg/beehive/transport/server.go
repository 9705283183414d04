package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net"
	"sync"
	"time"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/queue"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
)

// Server receives framed messages and buffers them for Poll and Messages.
type Server struct {
	addr string
	opts options
	q    *queue.Queue[[]byte]

	mu      sync.Mutex
	ctx     context.Context
	ln      net.Listener
	conns   map[net.Conn]struct{}
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewServer creates a server for addr. It does not listen until Start.
func NewServer(addr string, opts ...Option) *Server {
	return &Server{
		addr:  addr,
		opts:  buildOptions(opts),
		q:     queue.New[[]byte](),
		conns: make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and begins accepting clients in the
// background. Calling Start on a running server is a no-op.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &bherrors.TransportError{Op: "listen", Addr: s.addr, Err: bherrors.ErrClosed}
	}
	if s.started {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return &bherrors.TransportError{Op: "listen", Addr: s.addr, Err: err}
	}

	s.ln = ln
	s.ctx = context.WithoutCancel(ctx)
	s.started = true
	s.opts.logger.Debug("server listening", slog.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.opts.logger.Error("accept failed", slog.String("addr", s.addr), slog.String("error", err.Error()))
			return
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.readLoop(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) readLoop(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	r := bufio.NewReader(conn)
	for {
		msg, err := readFrame(r, s.opts.maxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.opts.metrics.RecordTransport(s.ctx, "recv", 0, err)
				s.opts.logger.Warn("connection dropped",
					slog.String("peer", peer),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		s.opts.metrics.RecordTransport(s.ctx, "recv", len(msg), nil)
		if err := s.q.Push(msg); err != nil {
			return
		}
	}
}

// Poll returns the oldest buffered message, waiting up to timeout.
// timeout <= 0 polls without waiting.
func (s *Server) Poll(timeout time.Duration) ([]byte, bool) {
	return s.q.Pop(timeout)
}

// Pending returns the number of buffered messages.
func (s *Server) Pending() int {
	return s.q.Len()
}

// Closed reports whether Shutdown has been called.
func (s *Server) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Messages returns the buffered messages as a sequence. Each call starts a
// new sequence over the same buffer. The sequence waits for messages using
// the scheduler's poll timeout and ends when ctx is done or the server is
// shut down and drained.
func (s *Server) Messages(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			wait := sched.PollTimeout(ctx)
			msg, ok := s.q.Pop(wait)
			if ok {
				if !yield(msg) {
					return
				}
				continue
			}

			if s.Closed() && s.q.Len() == 0 {
				return
			}
			if wait > 0 {
				if !sched.Yield(ctx) {
					return
				}
			} else if !sched.Idle(ctx) {
				return
			}
		}
	}
}

// Shutdown closes the listening socket and every client connection with
// zero linger, waits for the background loops, and stops buffering.
// Messages already buffered remain available. Shutdown is idempotent.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var err error
	if s.ln != nil {
		if cerr := s.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = &bherrors.TransportError{Op: "close", Addr: s.addr, Err: cerr}
		}
	}
	for conn := range s.conns {
		closeNoLinger(conn)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.q.Close()
	s.opts.logger.Debug("server shut down", slog.String("addr", s.addr))
	return err
}

func closeNoLinger(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
	_ = conn.Close()
}
