package runtime_test

import (
	"sync/atomic"

	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

const (
	testRate  = 48000.0
	testBlock = 16
)

// recorder is a unit that writes a constant to every output and records what
// it saw on its inputs.
type recorder struct {
	layout   domain.PortList
	value    float32
	control  float32
	prepares atomic.Int32
	releases atomic.Int32
	released atomic.Bool
	calls    atomic.Int64
	misuse   atomic.Int64
	lastIn   []float32
	lastCtl  []float32
	lastMidi []domain.MidiMessage
	midiSeen int
	osc      []byte
	oscFrame int32
	lastOSC  []string
}

func newRecorder(layout domain.PortList, value float32) *recorder {
	return &recorder{
		layout:   layout,
		value:    value,
		lastIn:   make([]float32, 8),
		lastCtl:  make([]float32, 8),
		lastMidi: make([]domain.MidiMessage, 8),
	}
}

func (p *recorder) Ports() domain.PortList { return p.layout.Clone() }

func (p *recorder) Prepare(float64, int) {
	p.prepares.Add(1)
	p.released.Store(false)
}

func (p *recorder) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	p.calls.Add(1)
	if p.released.Load() {
		p.misuse.Add(1)
	}
	for i, buf := range in.Audio {
		if i < len(p.lastIn) && len(buf) > 0 {
			p.lastIn[i] = buf[0]
		}
	}
	copy(p.lastCtl, in.Control)
	p.lastOSC = p.lastOSC[:0]
	for _, buf := range in.OSC {
		for _, pkt := range buf.Packets() {
			p.lastOSC = append(p.lastOSC, string(pkt.Bytes()))
		}
	}
	p.midiSeen = 0
	for _, buf := range midiIn {
		for _, m := range buf.Events() {
			if p.midiSeen < len(p.lastMidi) {
				p.lastMidi[p.midiSeen] = m
				p.midiSeen++
			}
		}
	}
	for _, buf := range out.Audio {
		for i := range buf {
			buf[i] = p.value
		}
	}
	for i := range out.Control {
		out.Control[i] = p.control
	}
	if p.osc != nil {
		for _, buf := range out.OSC {
			buf.Add(p.oscFrame, p.osc)
		}
	}
}

func (p *recorder) ReleaseResources() {
	p.releases.Add(1)
	p.released.Store(true)
}

func (p *recorder) Suspend(bool)        {}
func (p *recorder) LatencySamples() int { return 0 }

func audioSource(v float32) *recorder {
	return newRecorder(domain.Layout().AudioOuts(1).Build(), v)
}

func audioSink() *recorder {
	return newRecorder(domain.Layout().AudioIns(1).Build(), 0)
}

func node(id domain.NodeID, u ports.Unit) runtime.PlanNode {
	return runtime.PlanNode{ID: id, Unit: u, Ports: u.Ports()}
}

func arc(src domain.NodeID, sp uint32, dst domain.NodeID, dp uint32) domain.Arc {
	return domain.NewArc(src, sp, dst, dp)
}
