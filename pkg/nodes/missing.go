package nodes

import (
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// Missing stands in for a node whose type could not be resolved. It keeps
// the original port layout so stored arcs stay valid, and outputs silence.
type Missing struct {
	Base
}

// NewMissing creates a placeholder exposing layout.
func NewMissing(layout domain.PortList) *Missing {
	m := &Missing{}
	m.setLayout(layout.Clone())
	return m
}

func (m *Missing) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	silence(out, midiOut)
}
