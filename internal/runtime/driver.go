package runtime

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/nodes"
)

// Driver stands in for an audio device: it calls Engine.Process on a fixed
// period from a single goroutine. It is used by the CLI and by tests.
type Driver struct {
	engine *Engine
	period time.Duration
	logger *slog.Logger

	audioIn  [][]float32
	audioOut [][]float32
	midiIn   *domain.MidiBuffer
	midiOut  *domain.MidiBuffer
	inbox    *nodes.MidiRing
	outbox   *nodes.MidiRing
	peak     atomic.Uint32
	input    func(ch int, buf []float32)
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithChannels sets the number of device inputs and outputs.
func WithChannels(ins, outs int) DriverOption {
	return func(d *Driver) {
		d.audioIn = make([][]float32, ins)
		d.audioOut = make([][]float32, outs)
	}
}

// WithPeriod overrides the wall-clock time between blocks. Zero runs blocks
// back to back.
func WithPeriod(p time.Duration) DriverOption {
	return func(d *Driver) {
		d.period = p
	}
}

// WithInput fills each input channel before every block.
func WithInput(fn func(ch int, buf []float32)) DriverOption {
	return func(d *Driver) {
		d.input = fn
	}
}

// WithDriverLogger sets the logger used outside the block loop.
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

// NewDriver sizes its buffers for the engine's current format. Changing the
// format afterwards requires a new driver.
func NewDriver(e *Engine, opts ...DriverOption) *Driver {
	sr, bs := e.Format()
	d := &Driver{
		engine:   e,
		period:   time.Duration(float64(bs) / sr * float64(time.Second)),
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		audioIn:  make([][]float32, 2),
		audioOut: make([][]float32, 2),
		midiIn:   domain.NewMidiBuffer(domain.DefaultMidiCapacity),
		midiOut:  domain.NewMidiBuffer(domain.DefaultMidiCapacity),
		inbox:    nodes.NewMidiRing(1024),
		outbox:   nodes.NewMidiRing(1024),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.audioIn {
		d.audioIn[i] = make([]float32, bs)
	}
	for i := range d.audioOut {
		d.audioOut[i] = make([]float32, bs)
	}
	return d
}

// SendMidi queues a message for the next block's device MIDI input.
// Safe from one producer goroutine.
func (d *Driver) SendMidi(m domain.MidiMessage) bool { return d.inbox.Push(m) }

// ReceiveMidi pops a message the graph sent to the device MIDI output.
func (d *Driver) ReceiveMidi() (domain.MidiMessage, bool) { return d.outbox.Pop() }

// Peak returns the absolute peak of the last rendered block over all outputs.
func (d *Driver) Peak() float32 { return math.Float32frombits(d.peak.Load()) }

// Step renders n blocks on the calling goroutine. Step and Run must not be
// used concurrently.
func (d *Driver) Step(n int) {
	for range n {
		d.block()
	}
}

func (d *Driver) block() {
	d.midiIn.Clear()
	for {
		m, ok := d.inbox.Pop()
		if !ok {
			break
		}
		d.midiIn.Add(m)
	}
	if d.input != nil {
		for i, buf := range d.audioIn {
			d.input(i, buf)
		}
	}
	d.engine.Process(d.audioIn, d.audioOut, d.midiIn, d.midiOut)
	var peak float32
	for _, buf := range d.audioOut {
		for _, v := range buf {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
	}
	d.peak.Store(math.Float32bits(peak))
	for _, m := range d.midiOut.Events() {
		d.outbox.Push(m)
	}
}

// Run attaches the engine and renders blocks until ctx is done, then
// detaches it. Superseded sequences are collected every collectEvery blocks
// from a separate goroutine, the way a host's message thread would.
func (d *Driver) Run(ctx context.Context) error {
	d.engine.Attach()
	defer d.engine.Detach()
	d.logger.Info("driver started", "period", d.period, "inputs", len(d.audioIn), "outputs", len(d.audioOut))

	collectCtx, stop := context.WithCancel(ctx)
	defer stop()
	go d.collect(collectCtx)

	if d.period <= 0 {
		for ctx.Err() == nil {
			d.block()
		}
		d.logger.Info("driver stopped", "generation", d.engine.Generation())
		return nil
	}
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("driver stopped", "generation", d.engine.Generation())
			return nil
		case <-ticker.C:
			d.block()
		}
	}
}

func (d *Driver) collect(ctx context.Context) {
	interval := d.period * 8
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.engine.Collect()
		}
	}
}
