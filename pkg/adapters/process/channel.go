package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/patchbay/pkg/ports"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"

	// Register all transports (inproc, ipc, tcp, ws).
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

var (
	// ErrConnectionLost is returned by Receive after the peer went away.
	ErrConnectionLost = errors.New("connection to peer lost")
	// ErrChannelClosed is returned once the local side has been closed.
	ErrChannelClosed = errors.New("channel closed")
	// ErrLaunchTimeout is returned when a peer does not connect in time.
	ErrLaunchTimeout = errors.New("peer did not connect before timeout")
)

const (
	// pollInterval bounds how long Receive waits before rechecking its
	// context and the connection state.
	pollInterval = 20 * time.Millisecond
	sendDeadline = time.Second
)

// Channel is a ports.MessageChannel over a mangos PAIR socket. The socket's
// pipe events drive the connected and lost notifications.
type Channel struct {
	sock mangos.Socket

	connected chan struct{}
	lost      chan struct{}
	closed    chan struct{}

	connOnce  sync.Once
	lostOnce  sync.Once
	closeOnce sync.Once
}

var _ ports.MessageChannel = (*Channel)(nil)

func newChannel() (*Channel, error) {
	sock, err := pair.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create pair socket: %w", err)
	}
	c := &Channel{
		sock:      sock,
		connected: make(chan struct{}),
		lost:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
	sock.SetPipeEventHook(c.onPipeEvent)
	if err := sock.SetOption(mangos.OptionRecvDeadline, pollInterval); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.SetOption(mangos.OptionSendDeadline, sendDeadline); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return c, nil
}

// Listen opens a channel that waits for one peer to dial addr.
func Listen(addr string) (*Channel, error) {
	c, err := newChannel()
	if err != nil {
		return nil, err
	}
	if err := c.sock.Listen(addr); err != nil {
		_ = c.sock.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return c, nil
}

// Dial connects to a listening peer.
func Dial(addr string) (*Channel, error) {
	c, err := newChannel()
	if err != nil {
		return nil, err
	}
	if err := c.sock.Dial(addr); err != nil {
		_ = c.sock.Close()
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return c, nil
}

func (c *Channel) onPipeEvent(ev mangos.PipeEvent, _ mangos.Pipe) {
	switch ev {
	case mangos.PipeEventAttached:
		c.connOnce.Do(func() { close(c.connected) })
	case mangos.PipeEventDetached:
		// A pipe that never attached is not a lost connection.
		select {
		case <-c.connected:
			c.lostOnce.Do(func() { close(c.lost) })
		default:
		}
	}
}

// Connected is closed once a peer attaches.
func (c *Channel) Connected() <-chan struct{} { return c.connected }

// Lost is closed once an attached peer detaches.
func (c *Channel) Lost() <-chan struct{} { return c.lost }

// WaitConnected blocks until a peer attaches, ctx ends or timeout passes.
func (c *Channel) WaitConnected(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.connected:
		return nil
	case <-timer.C:
		return ErrLaunchTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrChannelClosed
	case <-c.lost:
		return ErrConnectionLost
	default:
	}
	// mangos may keep the slice until the message is written.
	msg := append([]byte(nil), payload...)
	if err := c.sock.Send(msg); err != nil {
		if errors.Is(err, mangos.ErrClosed) {
			return ErrChannelClosed
		}
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	for {
		msg, err := c.sock.Recv()
		if err == nil {
			return msg, nil
		}
		if errors.Is(err, mangos.ErrClosed) {
			return nil, ErrChannelClosed
		}
		if !errors.Is(err, mangos.ErrRecvTimeout) {
			return nil, fmt.Errorf("receive failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.lost:
			return nil, ErrConnectionLost
		default:
		}
	}
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.sock.Close()
	})
	return err
}
