package nodes_test

import (
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

const testBlock = 8

// buffersFor allocates one block of buffers matching the unit's layout.
func buffersFor(u ports.Unit) (in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	in, out = &ports.Buffers{}, &ports.Buffers{}
	for _, p := range u.Ports() {
		switch {
		case p.Type == domain.PortAudio && p.IsInput():
			in.Audio = append(in.Audio, make([]float32, testBlock))
		case p.Type == domain.PortAudio && p.IsOutput():
			out.Audio = append(out.Audio, make([]float32, testBlock))
		case p.Type == domain.PortControl && p.IsInput():
			in.Control = append(in.Control, 0)
		case p.Type == domain.PortControl && p.IsOutput():
			out.Control = append(out.Control, 0)
		case p.Type == domain.PortMidi && p.IsInput():
			midiIn = append(midiIn, domain.NewMidiBuffer(64))
		case p.Type == domain.PortMidi && p.IsOutput():
			midiOut = append(midiOut, domain.NewMidiBuffer(64))
		}
	}
	return in, out, midiIn, midiOut
}

func fill(buf []float32, v float32) {
	for i := range buf {
		buf[i] = v
	}
}
