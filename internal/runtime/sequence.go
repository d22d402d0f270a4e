package runtime

import (
	"fmt"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// PlanNode is one unit of a scheduled graph, in render order.
type PlanNode struct {
	ID    domain.NodeID
	Unit  ports.Unit
	Ports domain.PortList
	Mute  *atomic.Bool
	// Child is the plan of the node's own graph, for graph nodes.
	Child *Plan
}

// Plan is the control-thread description of one graph ready to be built:
// nodes already in render order plus the arcs between them.
type Plan struct {
	Graph  domain.NodeID
	Nodes  []PlanNode
	Arcs   []domain.Arc
	Device *ports.Device
}

type audioMix struct {
	dst  []float32
	srcs [][]float32
	dcs  []*float32
}

type midiMerge struct {
	dst  *domain.MidiBuffer
	srcs []*domain.MidiBuffer
	ccs  []ccSource
}

type oscMerge struct {
	dst  *domain.OSCBuffer
	srcs []*domain.OSCBuffer
}

// ccSource turns a control value into a MIDI control change on the
// destination port's channel number (controller 0-127).
type ccSource struct {
	src        *float32
	last       *float32
	controller byte
}

type controlLink struct {
	dst *float32
	src *float32
}

type step struct {
	id      domain.NodeID
	unit    ports.Unit
	in, out ports.Buffers
	midiIn  []*domain.MidiBuffer
	midiOut []*domain.MidiBuffer
	mute    *atomic.Bool

	audioMixes []audioMix
	midiMerges []midiMerge
	oscMerges  []oscMerge
	links      []controlLink
}

type binding struct {
	host  ports.GraphHost
	child ports.Renderer
}

// Sequence is an immutable render plan with all of its buffers allocated.
// Render never allocates.
type Sequence struct {
	id        uint64
	state     atomic.Int32
	steps     []step
	device    *ports.Device
	blockSize int

	// units lists every unit reachable from this sequence, nested graphs included.
	units    []ports.Unit
	bindings []binding
	order    []domain.NodeID
	children []*Sequence

	// retired units were removed from the graph before this sequence was built.
	retired []ports.Unit
}

var sequenceIDs atomic.Uint64

// BuildOption adjusts how a sequence is built.
type BuildOption func(*buildConfig)

type buildConfig struct {
	midiCapacity int
	oscCapacity  int
	retired      []ports.Unit
}

// WithMidiCapacity sets the per-port MIDI buffer capacity.
func WithMidiCapacity(n int) BuildOption {
	return func(c *buildConfig) {
		c.midiCapacity = n
	}
}

// WithOSCCapacity sets the per-port OSC packet capacity.
func WithOSCCapacity(n int) BuildOption {
	return func(c *buildConfig) {
		c.oscCapacity = n
	}
}

// WithRetired hands over units removed from the graph since the previous
// build. They are released once the previous sequence is disposed.
func WithRetired(units []ports.Unit) BuildOption {
	return func(c *buildConfig) {
		c.retired = units
	}
}

// Build allocates buffers for plan and wires every arc to them.
// It runs on the control thread.
func Build(plan *Plan, blockSize int, opts ...BuildOption) (*Sequence, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	cfg := buildConfig{midiCapacity: domain.DefaultMidiCapacity, oscCapacity: domain.DefaultOSCCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &builder{
		blockSize:    blockSize,
		midiCapacity: cfg.midiCapacity,
		oscCapacity:  cfg.oscCapacity,
		seen:         make(map[ports.Unit]struct{}),
	}
	seq, err := b.build(plan)
	if err != nil {
		return nil, err
	}
	seq.units = b.units
	seq.bindings = b.bindings
	seq.retired = cfg.retired
	return seq, nil
}

type portKey struct {
	node domain.NodeID
	port uint32
}

type builder struct {
	blockSize    int
	midiCapacity int
	oscCapacity  int
	units        []ports.Unit
	seen         map[ports.Unit]struct{}
	bindings     []binding
}

func (b *builder) build(plan *Plan) (*Sequence, error) {
	seq := &Sequence{
		id:        sequenceIDs.Add(1),
		device:    plan.Device,
		blockSize: b.blockSize,
		steps:     make([]step, len(plan.Nodes)),
		order:     make([]domain.NodeID, len(plan.Nodes)),
	}

	// Output buffers first, so every arc source exists before inputs are wired.
	audioOut := make(map[portKey][]float32)
	controlOut := make(map[portKey]*float32)
	midiOut := make(map[portKey]*domain.MidiBuffer)
	oscOut := make(map[portKey]*domain.OSCBuffer)
	portsOf := make(map[domain.NodeID]domain.PortList, len(plan.Nodes))

	for i, n := range plan.Nodes {
		if n.Unit == nil {
			return nil, fmt.Errorf("node %d has no unit", n.ID)
		}
		st := &seq.steps[i]
		st.id, st.unit, st.mute = n.ID, n.Unit, n.Mute
		seq.order[i] = n.ID
		portsOf[n.ID] = n.Ports
		if _, dup := b.seen[n.Unit]; !dup {
			b.seen[n.Unit] = struct{}{}
			b.units = append(b.units, n.Unit)
		}
		if binder, ok := n.Unit.(ports.DeviceBinder); ok && plan.Device != nil {
			binder.BindDevice(plan.Device)
		}
		for _, p := range n.Ports {
			if !p.IsOutput() {
				continue
			}
			key := portKey{n.ID, p.Index}
			switch p.Type {
			case domain.PortAudio:
				buf := make([]float32, b.blockSize)
				st.out.Audio = append(st.out.Audio, buf)
				audioOut[key] = buf
			case domain.PortControl:
				st.out.Control = append(st.out.Control, 0)
			case domain.PortMidi:
				buf := domain.NewMidiBuffer(b.midiCapacity)
				st.midiOut = append(st.midiOut, buf)
				midiOut[key] = buf
			case domain.PortOSC:
				buf := domain.NewOSCBuffer(b.oscCapacity)
				st.out.OSC = append(st.out.OSC, buf)
				oscOut[key] = buf
			}
		}
		// Control slots are addressed after the slice stops growing.
		ci := 0
		for _, p := range n.Ports {
			if p.IsOutput() && p.Type == domain.PortControl {
				controlOut[portKey{n.ID, p.Index}] = &st.out.Control[ci]
				ci++
			}
		}
	}

	incoming := make(map[portKey][]domain.Arc)
	for _, a := range plan.Arcs {
		k := portKey{a.DstNode, a.DstPort}
		incoming[k] = append(incoming[k], a)
	}

	zero := make([]float32, b.blockSize)
	empty := domain.NewMidiBuffer(1)
	emptyOSC := domain.NewOSCBuffer(1)

	for i := range seq.steps {
		st := &seq.steps[i]
		for _, p := range portsOf[st.id] {
			if !p.IsInput() {
				continue
			}
			arcs := incoming[portKey{st.id, p.Index}]
			switch p.Type {
			case domain.PortAudio:
				var srcs [][]float32
				var dcs []*float32
				for _, a := range arcs {
					if buf, ok := audioOut[portKey{a.SrcNode, a.SrcPort}]; ok {
						srcs = append(srcs, buf)
					} else if v, ok := controlOut[portKey{a.SrcNode, a.SrcPort}]; ok {
						dcs = append(dcs, v)
					}
				}
				switch {
				case len(srcs) == 0 && len(dcs) == 0:
					st.in.Audio = append(st.in.Audio, zero)
				case len(srcs) == 1 && len(dcs) == 0:
					st.in.Audio = append(st.in.Audio, srcs[0])
				default:
					sum := make([]float32, b.blockSize)
					st.in.Audio = append(st.in.Audio, sum)
					st.audioMixes = append(st.audioMixes, audioMix{dst: sum, srcs: srcs, dcs: dcs})
				}
			case domain.PortMidi:
				var srcs []*domain.MidiBuffer
				var ccs []ccSource
				for _, a := range arcs {
					if buf, ok := midiOut[portKey{a.SrcNode, a.SrcPort}]; ok {
						srcs = append(srcs, buf)
					} else if v, ok := controlOut[portKey{a.SrcNode, a.SrcPort}]; ok {
						last := float32(-1)
						ccs = append(ccs, ccSource{src: v, last: &last, controller: byte(p.Channel & 0x7F)})
					}
				}
				switch {
				case len(srcs) == 0 && len(ccs) == 0:
					st.midiIn = append(st.midiIn, empty)
				case len(srcs) == 1 && len(ccs) == 0:
					st.midiIn = append(st.midiIn, srcs[0])
				default:
					merged := domain.NewMidiBuffer(b.midiCapacity)
					st.midiIn = append(st.midiIn, merged)
					st.midiMerges = append(st.midiMerges, midiMerge{dst: merged, srcs: srcs, ccs: ccs})
				}
			case domain.PortOSC:
				var srcs []*domain.OSCBuffer
				for _, a := range arcs {
					if buf, ok := oscOut[portKey{a.SrcNode, a.SrcPort}]; ok {
						srcs = append(srcs, buf)
					}
				}
				switch len(srcs) {
				case 0:
					st.in.OSC = append(st.in.OSC, emptyOSC)
				case 1:
					st.in.OSC = append(st.in.OSC, srcs[0])
				default:
					merged := domain.NewOSCBuffer(b.oscCapacity)
					st.in.OSC = append(st.in.OSC, merged)
					st.oscMerges = append(st.oscMerges, oscMerge{dst: merged, srcs: srcs})
				}
			case domain.PortControl:
				st.in.Control = append(st.in.Control, 0)
			}
		}
		// Link control inputs once their slots are stable. A control input
		// has at most one arc; its source may run later in the block, in
		// which case the value from the previous block is used.
		ci := 0
		for _, p := range portsOf[st.id] {
			if !p.IsInput() || p.Type != domain.PortControl {
				continue
			}
			for _, a := range incoming[portKey{st.id, p.Index}] {
				if v, ok := controlOut[portKey{a.SrcNode, a.SrcPort}]; ok {
					st.links = append(st.links, controlLink{dst: &st.in.Control[ci], src: v})
				}
			}
			ci++
		}
	}

	for _, n := range plan.Nodes {
		if n.Child == nil {
			continue
		}
		host, ok := n.Unit.(ports.GraphHost)
		if !ok {
			return nil, fmt.Errorf("node %d has a child graph but its unit cannot host one", n.ID)
		}
		childPlan := *n.Child
		childPlan.Device = host.Device()
		child, err := b.build(&childPlan)
		if err != nil {
			return nil, fmt.Errorf("graph node %d: %w", n.ID, err)
		}
		seq.children = append(seq.children, child)
		b.bindings = append(b.bindings, binding{host: host, child: child})
	}
	return seq, nil
}

// ID is unique per built sequence within the process.
func (s *Sequence) ID() uint64 { return s.id }

// State returns the current lifecycle state.
func (s *Sequence) State() State { return State(s.state.Load()) }

// Order returns the node ids of the root graph in render order.
func (s *Sequence) Order() []domain.NodeID {
	return append([]domain.NodeID(nil), s.order...)
}

// Children returns the sequences of nested graphs, in render order.
func (s *Sequence) Children() []*Sequence { return s.children }

// Units returns every unit the sequence references, nested graphs included.
func (s *Sequence) Units() []ports.Unit { return s.units }

// Len returns the number of steps in the root graph.
func (s *Sequence) Len() int { return len(s.steps) }

// BlockSize is the block length the buffers were allocated for.
func (s *Sequence) BlockSize() int { return s.blockSize }

// Render runs every step once against the sequence's device. It runs on
// the audio thread and must not allocate.
func (s *Sequence) Render() {
	for i := range s.steps {
		st := &s.steps[i]
		for m := range st.audioMixes {
			mix := &st.audioMixes[m]
			clear(mix.dst)
			for _, src := range mix.srcs {
				for n, v := range src {
					mix.dst[n] += v
				}
			}
			for _, dc := range mix.dcs {
				v := *dc
				for n := range mix.dst {
					mix.dst[n] += v
				}
			}
		}
		for m := range st.midiMerges {
			merge := &st.midiMerges[m]
			merge.dst.Clear()
			for _, src := range merge.srcs {
				merge.dst.Merge(src)
			}
			for _, cc := range merge.ccs {
				v := *cc.src
				if v == *cc.last {
					continue
				}
				*cc.last = v
				merge.dst.Add(domain.NewMidiMessage(0, domain.MidiControlChange, cc.controller, controlToMidi(v)))
			}
		}
		for m := range st.oscMerges {
			merge := &st.oscMerges[m]
			merge.dst.Clear()
			for _, src := range merge.srcs {
				merge.dst.Merge(src)
			}
		}
		for _, l := range st.links {
			*l.dst = *l.src
		}
		for _, buf := range st.midiOut {
			buf.Clear()
		}
		for _, buf := range st.out.OSC {
			buf.Clear()
		}
		// A muted unit is skipped; its outputs stay silent.
		if st.mute != nil && st.mute.Load() {
			for _, buf := range st.out.Audio {
				clear(buf)
			}
			continue
		}
		st.unit.Process(&st.in, &st.out, st.midiIn, st.midiOut)
	}
}

// controlToMidi maps a normalized control value to a 7-bit MIDI value.
func controlToMidi(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 127
	}
	return byte(v*127 + 0.5)
}

// activate installs nested renderers and marks the sequence Active.
// Audio thread only.
func (s *Sequence) activate() {
	for i := range s.bindings {
		b := &s.bindings[i]
		b.host.SetChild(&b.child)
	}
	s.markActive()
}

func (s *Sequence) markActive() {
	s.state.CompareAndSwap(int32(StatePreparing), int32(StateActive))
	for _, c := range s.children {
		c.markActive()
	}
}

func (s *Sequence) setState(st State) {
	s.state.Store(int32(st))
	for _, c := range s.children {
		c.setState(st)
	}
}
