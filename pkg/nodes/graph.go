package nodes

import (
	"fmt"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// GraphConfig sizes the external ports of a nested graph node.
type GraphConfig struct {
	AudioIns  int `mapstructure:"audio_ins"`
	AudioOuts int `mapstructure:"audio_outs"`
	MidiIns   int `mapstructure:"midi_ins"`
	MidiOuts  int `mapstructure:"midi_outs"`
}

// Graph renders a child graph inside its parent's block. The child's IO
// nodes see this node's inputs and outputs as their device. Bypass passes
// the inputs through.
type Graph struct {
	Base
	cfg     GraphConfig
	device  ports.Device
	child   atomic.Pointer[ports.Renderer]
	scratch *domain.MidiBuffer
}

func NewGraph() *Graph {
	g := &Graph{cfg: GraphConfig{AudioIns: 2, AudioOuts: 2, MidiIns: 1, MidiOuts: 1}}
	g.scratch = domain.NewMidiBuffer(domain.DefaultMidiCapacity)
	g.applyLayout()
	return g
}

func (g *Graph) applyLayout() {
	c := g.cfg
	g.setLayout(domain.Layout().
		AudioIns(c.AudioIns).AudioOuts(c.AudioOuts).
		MidiIns(c.MidiIns).MidiOuts(c.MidiOuts).
		Build())
}

func (g *Graph) Configure(props domain.Properties) error {
	cfg := g.cfg
	if err := decodeConfig(props, &cfg); err != nil {
		return err
	}
	if cfg.MidiIns > 1 || cfg.MidiOuts > 1 {
		return fmt.Errorf("graph node supports at most one midi input and output")
	}
	for _, n := range []int{cfg.AudioIns, cfg.AudioOuts, cfg.MidiIns, cfg.MidiOuts} {
		if n < 0 || n > 64 {
			return fmt.Errorf("graph port count %d out of range", n)
		}
	}
	g.cfg = cfg
	g.applyLayout()
	return nil
}

// Device is the device the child graph's IO nodes bind to.
func (g *Graph) Device() *ports.Device { return &g.device }

// SetChild installs the child renderer. Called on the audio thread when the
// parent sequence carrying it becomes active; slot points into that
// sequence and stays valid until the sequence is disposed.
func (g *Graph) SetChild(slot *ports.Renderer) { g.child.Store(slot) }

// Child returns the current child renderer, if any.
func (g *Graph) Child() ports.Renderer {
	if s := g.child.Load(); s != nil {
		return *s
	}
	return nil
}

func (g *Graph) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	if g.Suspended() {
		passThrough(in, out, midiIn, midiOut)
		return
	}
	silence(out, midiOut)
	slot := g.child.Load()
	if slot == nil {
		return
	}
	dev := &g.device
	dev.AudioIn = in.Audio
	dev.AudioOut = out.Audio
	dev.MidiIn = nil
	if len(midiIn) > 0 {
		dev.MidiIn = midiIn[0]
	}
	dev.MidiOut = g.scratch
	if len(midiOut) > 0 {
		dev.MidiOut = midiOut[0]
	}
	dev.MidiOut.Clear()
	if len(out.Audio) > 0 {
		dev.Frames = len(out.Audio[0])
	} else if len(in.Audio) > 0 {
		dev.Frames = len(in.Audio[0])
	}
	(*slot).Render()
}
