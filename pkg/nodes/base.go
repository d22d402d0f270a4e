package nodes

import (
	"math"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// Base carries the bookkeeping shared by all built-in units.
type Base struct {
	layout domain.PortList

	// control-thread only
	sampleRate float64
	blockSize  int
	prepares   int

	suspended atomic.Bool
	released  atomic.Bool
}

func (b *Base) Ports() domain.PortList { return b.layout.Clone() }

func (b *Base) setLayout(l domain.PortList) { b.layout = l }

// Prepare records the stream format. It reports whether anything changed,
// so units can skip reallocating state on a redundant call.
func (b *Base) prepare(sampleRate float64, blockSize int) bool {
	b.released.Store(false)
	if b.prepares > 0 && b.sampleRate == sampleRate && b.blockSize == blockSize {
		return false
	}
	b.sampleRate = sampleRate
	b.blockSize = blockSize
	b.prepares++
	return true
}

func (b *Base) Prepare(sampleRate float64, blockSize int) { b.prepare(sampleRate, blockSize) }

// PrepareCount returns how many times the unit was (re)configured for a new format.
func (b *Base) PrepareCount() int { return b.prepares }

func (b *Base) SampleRate() float64 { return b.sampleRate }
func (b *Base) BlockSize() int      { return b.blockSize }

func (b *Base) ReleaseResources() {
	b.released.Store(true)
	b.prepares = 0
}

// Released reports whether ReleaseResources ran since the last Prepare.
func (b *Base) Released() bool { return b.released.Load() }

func (b *Base) Suspend(s bool)      { b.suspended.Store(s) }
func (b *Base) Suspended() bool     { return b.suspended.Load() }
func (b *Base) LatencySamples() int { return 0 }

// passThrough copies inputs to outputs by position and silences the rest.
func passThrough(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	for i, dst := range out.Audio {
		if i < len(in.Audio) {
			copy(dst, in.Audio[i])
		} else {
			clear(dst)
		}
	}
	for i := range out.Control {
		if i < len(in.Control) {
			out.Control[i] = in.Control[i]
		}
	}
	for i, dst := range midiOut {
		dst.Clear()
		if i < len(midiIn) {
			dst.Merge(midiIn[i])
		}
	}
	for i, dst := range out.OSC {
		dst.Clear()
		if i < len(in.OSC) {
			dst.Merge(in.OSC[i])
		}
	}
}

// silence clears every output.
func silence(out *ports.Buffers, midiOut []*domain.MidiBuffer) {
	for _, dst := range out.Audio {
		clear(dst)
	}
	for _, dst := range midiOut {
		dst.Clear()
	}
	for _, dst := range out.OSC {
		dst.Clear()
	}
}

// Param is a float32 value shared between the control and audio threads.
type Param struct {
	bits atomic.Uint32
}

func (p *Param) Set(v float32) { p.bits.Store(math.Float32bits(v)) }
func (p *Param) Get() float32  { return math.Float32frombits(p.bits.Load()) }
