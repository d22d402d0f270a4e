package ports

import (
	"context"
	"time"
)

// MessageChannel is the minimal contract with an out-of-process host.
// Payloads are opaque; framing is the transport's concern.
type MessageChannel interface {
	// Send delivers one payload to the peer.
	Send(ctx context.Context, payload []byte) error

	// Receive blocks until a payload arrives, the context ends or the
	// connection is lost.
	Receive(ctx context.Context) ([]byte, error)

	// Lost is closed once the peer disconnects.
	Lost() <-chan struct{}

	Close() error
}

// Launcher starts or connects to an out-of-process host and returns a
// channel to it. It fails if the peer does not connect within timeout.
type Launcher interface {
	Launch(ctx context.Context, timeout time.Duration) (MessageChannel, error)
}
