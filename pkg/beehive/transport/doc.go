/*
Package transport bridges hives over TCP.

A Client pushes messages to a Server, which buffers them for a local
consumer. Delivery is best effort and at most once: there is no
acknowledgement, and a message the client cannot write after its retries is
dropped and logged.

# Framing

Each message is a 4-byte big-endian length followed by the payload. Frames
larger than the configured maximum are refused by the client and end the
server connection that carries them.

# Hive Integration

SocketSource wraps a Server as a bee.Source. Received bytes are decoded
with event.Unmarshal and republished with their identity and creation time
intact; the owning streamer stamps its own topic.

SocketListener wraps a Client as a bee.Listener. It encodes the event
returned by its ParseFunc and sends it; the listener itself forwards
nothing to its children.

	srv := transport.NewServer(transport.Address("127.0.0.1", 7070))
	streamer := transport.NewSocketStreamer("remote", srv, bee.WithTopic("remote"))

	cli := transport.NewClient(transport.Address("127.0.0.1", 7070))
	listener := transport.NewSocketListener("forward", cli, nil)

# Cancellation

Blocking reads and accepts are unblocked by closing their sockets, so
Shutdown returns promptly. Connections are closed with zero linger.
*/
package transport
