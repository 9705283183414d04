package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
)

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	srv := NewServer(Address("127.0.0.1", 0), opts...)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv
}

func fastRetry() Option {
	return WithRetry(bherrors.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
	})
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:7000", Address("127.0.0.1", 7000))
	assert.Equal(t, "[::1]:80", Address("::1", 80))
	assert.Equal(t, ":0", Address("", 0))
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(appendFrame(nil, []byte("one")))
	buf.Write(appendFrame(nil, nil))
	buf.Write(appendFrame(nil, []byte("three")))

	for _, want := range []string{"one", "", "three"} {
		got, err := readFrame(&buf, 16)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	_, err := readFrame(&buf, 16)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_Errors(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		_, err := readFrame(bytes.NewReader(appendFrame(nil, make([]byte, 17))), 16)
		assert.ErrorIs(t, err, bherrors.ErrFrameTooLarge)
	})

	t.Run("truncated payload", func(t *testing.T) {
		frame := appendFrame(nil, []byte("abcdef"))
		_, err := readFrame(bytes.NewReader(frame[:6]), 16)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := readFrame(bytes.NewReader([]byte{0, 0}), 16)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestClientServer_FiveMessagesInOrder(t *testing.T) {
	srv := startServer(t)

	cli := NewClient(srv.Addr())
	require.NoError(t, cli.Connect(context.Background()))
	defer cli.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs := []string{"m0", "m1", "m2", "m3", "m4"}
	for _, m := range msgs {
		require.NoError(t, cli.Send(ctx, []byte(m)))
	}

	var got []string
	for msg := range srv.Messages(ctx) {
		got = append(got, string(msg))
		if len(got) == len(msgs) {
			break
		}
	}
	assert.Equal(t, msgs, got)
}

func TestClient_ConnectBeforeServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cli := NewClient(addr, fastRetry())
	defer cli.Shutdown()

	require.NoError(t, cli.Connect(context.Background()))
	assert.False(t, cli.Connected())

	srv := NewServer(addr)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Shutdown()

	require.NoError(t, cli.Send(context.Background(), []byte("late")))
	assert.True(t, cli.Connected())

	msg, ok := srv.Poll(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, "late", string(msg))
}

func TestClient_DropsAfterRetries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var retries int
	cfg := bherrors.NewRetryConfig(bherrors.TransportRetry,
		bherrors.WithMaxAttempts(3),
		bherrors.WithInitialBackoff(time.Millisecond),
		bherrors.WithOnRetry(func(int, error) { retries++ }),
	)
	cli := NewClient(addr, WithRetry(cfg), WithLogger(logger))
	defer cli.Shutdown()

	err = cli.Send(context.Background(), []byte("lost"))
	require.Error(t, err)
	assert.True(t, bherrors.IsRetryable(err))
	assert.ErrorIs(t, err, bherrors.ErrNotConnected)
	assert.Equal(t, 2, retries)
	assert.Contains(t, logs.String(), "message dropped")
	assert.Equal(t, 2, strings.Count(logs.String(), `"msg":"send retry"`))
	assert.Contains(t, logs.String(), `"attempt":2`)
}

func TestClient_FrameTooLarge(t *testing.T) {
	srv := startServer(t)

	cli := NewClient(srv.Addr(), WithMaxFrameSize(4))
	defer cli.Shutdown()

	err := cli.Send(context.Background(), []byte("too long"))
	require.Error(t, err)
	assert.ErrorIs(t, err, bherrors.ErrFrameTooLarge)
	assert.False(t, bherrors.IsRetryable(err))
}

func TestClient_Closed(t *testing.T) {
	cli := NewClient(Address("127.0.0.1", 1))
	require.NoError(t, cli.Shutdown())
	require.NoError(t, cli.Shutdown())

	assert.ErrorIs(t, cli.Connect(context.Background()), bherrors.ErrClosed)

	err := cli.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, bherrors.ErrClosed)
	assert.False(t, bherrors.IsRetryable(err))
}

func TestClient_InvalidAddress(t *testing.T) {
	cli := NewClient("no-port")
	var terr *bherrors.TransportError
	assert.True(t, errors.As(cli.Connect(context.Background()), &terr))
}

func TestServer_OversizedFrameDropsConnection(t *testing.T) {
	srv := startServer(t, WithMaxFrameSize(8))

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1024)
	_, err = conn.Write(header[:])
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "server should close the connection")

	_, ok := srv.Poll(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestServer_Lifecycle(t *testing.T) {
	srv := NewServer(Address("127.0.0.1", 0))
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Start(context.Background()), "second start is a no-op")
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	cli := NewClient(srv.Addr())
	require.NoError(t, cli.Send(context.Background(), []byte("kept")))
	defer cli.Shutdown()

	require.Eventually(t, func() bool { return srv.Pending() == 1 }, 2*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, srv.Shutdown())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked on an open connection")
	}
	assert.True(t, srv.Closed())
	assert.NoError(t, srv.Shutdown())

	var got []string
	for msg := range srv.Messages(context.Background()) {
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"kept"}, got)

	assert.ErrorIs(t, srv.Start(context.Background()), bherrors.ErrClosed)
}

func TestServer_MessagesStopsOnCancel(t *testing.T) {
	srv := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		for range srv.Messages(ctx) {
		}
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Messages did not observe cancellation")
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := startServer(t)

	other := NewServer(srv.Addr())
	err := other.Start(context.Background())

	var terr *bherrors.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "listen", terr.Op)
}
