package domain

import "fmt"

// PortType is the kind of data a port carries.
type PortType string

const (
	PortAudio   PortType = "audio"
	PortControl PortType = "control"
	PortMidi    PortType = "midi"
	PortOSC     PortType = "osc"
)

// Valid reports whether t is one of the known port types.
func (t PortType) Valid() bool {
	switch t {
	case PortAudio, PortControl, PortMidi, PortOSC:
		return true
	}
	return false
}

// IsSignal reports whether arcs of this type constrain the render order.
// Signal arcs must form an acyclic graph; control arcs do not.
func (t PortType) IsSignal() bool {
	return t == PortAudio || t == PortMidi || t == PortOSC
}

// Flow is the direction of a port.
type Flow string

const (
	FlowInput  Flow = "input"
	FlowOutput Flow = "output"
)

// Port is a typed, directional terminal on a node.
// The (node, Index) pair is immutable for the lifetime of the node.
type Port struct {
	Index   uint32   `json:"index" yaml:"index"`
	Flow    Flow     `json:"flow" yaml:"flow"`
	Type    PortType `json:"type" yaml:"type"`
	Channel int      `json:"channel" yaml:"channel"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	// Hidden is a UI hint for block views. It has no effect on routing.
	Hidden bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
}

func (p Port) IsInput() bool  { return p.Flow == FlowInput }
func (p Port) IsOutput() bool { return p.Flow == FlowOutput }

func (p Port) String() string {
	return fmt.Sprintf("%s %s #%d", p.Type, p.Flow, p.Index)
}

// TypesCompatible reports whether an output of type src may feed an input
// of type dst. Besides equal types, control outputs may automate audio and
// midi inputs.
func TypesCompatible(src, dst PortType) bool {
	if src == dst {
		return true
	}
	return src == PortControl && (dst == PortAudio || dst == PortMidi)
}

// CheckPorts applies the port-level connection rules (direction and type).
// Graph-level rules such as duplicates or cycles are enforced by the graph manager.
func CheckPorts(src, dst Port) ReasonCode {
	if !src.IsOutput() || !dst.IsInput() {
		return ReasonDirection
	}
	if !TypesCompatible(src.Type, dst.Type) {
		return ReasonTypeMismatch
	}
	return ReasonNone
}

// PortList is an ordered set of ports indexed by their position.
type PortList []Port

// Get returns the port with the given index.
func (l PortList) Get(index uint32) (Port, bool) {
	if int(index) >= len(l) {
		return Port{}, false
	}
	p := l[index]
	return p, p.Index == index
}

// Count returns how many ports match the given type and flow.
func (l PortList) Count(t PortType, f Flow) int {
	n := 0
	for _, p := range l {
		if p.Type == t && p.Flow == f {
			n++
		}
	}
	return n
}

// Nth returns the position among ports of the same type and flow
// (the "channel slot" a unit sees) for the port at index.
func (l PortList) Nth(index uint32) int {
	p, ok := l.Get(index)
	if !ok {
		return -1
	}
	n := 0
	for _, q := range l[:index] {
		if q.Type == p.Type && q.Flow == p.Flow {
			n++
		}
	}
	return n
}

// Clone returns an independent copy of the list.
func (l PortList) Clone() PortList {
	if l == nil {
		return nil
	}
	out := make(PortList, len(l))
	copy(out, l)
	return out
}

// LayoutBuilder assembles a PortList with sequential indices.
// Audio and midi ports get their channel from their position within their kind.
type LayoutBuilder struct {
	ports PortList
}

func (b *LayoutBuilder) add(t PortType, f Flow, n int, names ...string) *LayoutBuilder {
	for i := 0; i < n; i++ {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		if name == "" {
			name = fmt.Sprintf("%s %s %d", t, f, i+1)
		}
		b.ports = append(b.ports, Port{
			Index:   uint32(len(b.ports)),
			Flow:    f,
			Type:    t,
			Channel: i,
			Name:    name,
		})
	}
	return b
}

func (b *LayoutBuilder) AudioIns(n int, names ...string) *LayoutBuilder {
	return b.add(PortAudio, FlowInput, n, names...)
}
func (b *LayoutBuilder) AudioOuts(n int, names ...string) *LayoutBuilder {
	return b.add(PortAudio, FlowOutput, n, names...)
}
func (b *LayoutBuilder) ControlIns(n int, names ...string) *LayoutBuilder {
	return b.add(PortControl, FlowInput, n, names...)
}
func (b *LayoutBuilder) ControlOuts(n int, names ...string) *LayoutBuilder {
	return b.add(PortControl, FlowOutput, n, names...)
}
func (b *LayoutBuilder) MidiIns(n int, names ...string) *LayoutBuilder {
	return b.add(PortMidi, FlowInput, n, names...)
}
func (b *LayoutBuilder) MidiOuts(n int, names ...string) *LayoutBuilder {
	return b.add(PortMidi, FlowOutput, n, names...)
}
func (b *LayoutBuilder) OSCIns(n int, names ...string) *LayoutBuilder {
	return b.add(PortOSC, FlowInput, n, names...)
}
func (b *LayoutBuilder) OSCOuts(n int, names ...string) *LayoutBuilder {
	return b.add(PortOSC, FlowOutput, n, names...)
}

// Build returns the accumulated ports.
func (b *LayoutBuilder) Build() PortList { return b.ports.Clone() }

// Layout starts a new LayoutBuilder.
func Layout() *LayoutBuilder { return &LayoutBuilder{} }
