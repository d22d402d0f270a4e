package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/osc"
	"github.com/aretw0/patchbay/pkg/ports"
)

// OSCConfig is decoded from an OSC node's custom properties.
type OSCConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Address string `mapstructure:"address"`
}

const (
	oscRingSize     = 2048
	oscPollInterval = 2 * time.Millisecond
	defaultOSCPath  = "/midi"
)

func (c OSCConfig) hostPort() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// OSCSender forwards incoming MIDI as OSC 'm' messages over UDP.
// The audio thread only pushes into a ring; a background goroutine owns
// the socket. Bypass drops the stream.
type OSCSender struct {
	Base
	cfg    OSCConfig
	ring   *MidiRing
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	sent   int
}

func NewOSCSender(logger *slog.Logger) *OSCSender {
	s := &OSCSender{
		cfg:    OSCConfig{Host: "127.0.0.1", Port: 9000, Address: defaultOSCPath},
		ring:   NewMidiRing(oscRingSize),
		logger: logger,
	}
	s.setLayout(domain.Layout().MidiIns(1).Build())
	return s
}

func (s *OSCSender) Configure(props domain.Properties) error {
	cfg := s.cfg
	if err := decodeConfig(props, &cfg); err != nil {
		return err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("osc sender port %d out of range", cfg.Port)
	}
	s.cfg = cfg
	return nil
}

// Prepare dials the target and starts the forwarding goroutine once.
func (s *OSCSender) Prepare(sampleRate float64, blockSize int) {
	s.prepare(sampleRate, blockSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	conn, err := net.Dial("udp", s.cfg.hostPort())
	if err != nil {
		s.logger.Warn("osc sender disabled", "target", s.cfg.hostPort(), "error", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.forward(ctx, conn, s.done)
}

func (s *OSCSender) forward(ctx context.Context, conn net.Conn, done chan struct{}) {
	defer close(done)
	defer conn.Close()
	ticker := time.NewTicker(oscPollInterval)
	defer ticker.Stop()
	var packet []byte
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			m, ok := s.ring.Pop()
			if !ok {
				break
			}
			msg := osc.Message{Address: s.cfg.Address, Args: []any{osc.Midi{0, m.Data[0], m.Data[1], m.Data[2]}}}
			var err error
			if packet, err = msg.AppendBinary(packet[:0]); err != nil {
				s.logger.Warn("osc encode failed", "error", err)
				continue
			}
			if _, err := conn.Write(packet); err != nil {
				s.logger.Debug("osc send failed", "error", err)
				continue
			}
			s.mu.Lock()
			s.sent++
			s.mu.Unlock()
		}
	}
}

// Sent returns how many messages reached the socket.
func (s *OSCSender) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *OSCSender) ReleaseResources() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	s.Base.ReleaseResources()
}

func (s *OSCSender) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	if s.Suspended() || len(midiIn) == 0 {
		return
	}
	for _, m := range midiIn[0].Events() {
		s.ring.Push(m)
	}
}

// OSCReceiver listens for OSC messages on UDP and emits them as MIDI at
// the start of the next block. Accepted forms are a single 'm' argument or
// three ints (status, data1, data2). Bypass outputs silence and discards
// what arrived.
type OSCReceiver struct {
	Base
	cfg    OSCConfig
	ring   *MidiRing
	logger *slog.Logger

	mu   sync.Mutex
	conn net.PacketConn
	done chan struct{}
}

func NewOSCReceiver(logger *slog.Logger) *OSCReceiver {
	r := &OSCReceiver{
		cfg:    OSCConfig{Host: "127.0.0.1", Port: 9001, Address: defaultOSCPath},
		ring:   NewMidiRing(oscRingSize),
		logger: logger,
	}
	r.setLayout(domain.Layout().MidiOuts(1).Build())
	return r
}

func (r *OSCReceiver) Configure(props domain.Properties) error {
	cfg := r.cfg
	if err := decodeConfig(props, &cfg); err != nil {
		return err
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("osc receiver port %d out of range", cfg.Port)
	}
	r.cfg = cfg
	return nil
}

// Prepare binds the socket and starts the listener goroutine once.
func (r *OSCReceiver) Prepare(sampleRate float64, blockSize int) {
	r.prepare(sampleRate, blockSize)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return
	}
	conn, err := net.ListenPacket("udp", r.cfg.hostPort())
	if err != nil {
		r.logger.Warn("osc receiver disabled", "listen", r.cfg.hostPort(), "error", err)
		return
	}
	r.conn = conn
	r.done = make(chan struct{})
	go r.listen(conn, r.done)
}

// Addr returns the bound address, or nil before Prepare.
func (r *OSCReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Pending returns how many messages wait for the next block.
func (r *OSCReceiver) Pending() int { return r.ring.Len() }

func (r *OSCReceiver) listen(conn net.PacketConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Warn("osc receive failed", "error", err)
			}
			return
		}
		msgs, err := osc.Parse(buf[:n])
		if err != nil {
			r.logger.Debug("osc packet dropped", "error", err)
			continue
		}
		for _, msg := range msgs {
			if m, ok := r.toMidi(msg); ok {
				r.ring.Push(m)
			}
		}
	}
}

func (r *OSCReceiver) toMidi(msg osc.Message) (domain.MidiMessage, bool) {
	if msg.Address != r.cfg.Address {
		return domain.MidiMessage{}, false
	}
	switch len(msg.Args) {
	case 1:
		if m, ok := msg.Args[0].(osc.Midi); ok {
			return domain.NewMidiMessage(0, m[1], m[2], m[3]), true
		}
	case 3:
		var b [3]byte
		for i, a := range msg.Args {
			v, ok := a.(int32)
			if !ok {
				return domain.MidiMessage{}, false
			}
			b[i] = byte(v)
		}
		return domain.NewMidiMessage(0, b[:]...), true
	}
	return domain.MidiMessage{}, false
}

func (r *OSCReceiver) ReleaseResources() {
	r.mu.Lock()
	conn, done := r.conn, r.done
	r.conn, r.done = nil, nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
		<-done
	}
	r.Base.ReleaseResources()
}

func (r *OSCReceiver) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	if len(midiOut) == 0 {
		return
	}
	dst := midiOut[0]
	dst.Clear()
	suspended := r.Suspended()
	for {
		m, ok := r.ring.Pop()
		if !ok {
			return
		}
		if !suspended {
			dst.Add(m)
		}
	}
}
