package nodes

import (
	"strconv"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// MidiChannelSplitter fans a MIDI stream out to sixteen outputs, one per
// channel. Channel-less (system) messages go to every output.
// When bypassed the whole stream goes to the first output.
type MidiChannelSplitter struct {
	Base
}

func NewMidiChannelSplitter() *MidiChannelSplitter {
	s := &MidiChannelSplitter{}
	names := make([]string, 16)
	for i := range names {
		names[i] = "Ch " + strconv.Itoa(i+1)
	}
	s.setLayout(domain.Layout().MidiIns(1).MidiOuts(16, names...).Build())
	return s
}

func (s *MidiChannelSplitter) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	for _, dst := range midiOut {
		dst.Clear()
	}
	if len(midiIn) == 0 || len(midiOut) == 0 {
		return
	}
	if s.Suspended() {
		midiOut[0].Merge(midiIn[0])
		return
	}
	for _, m := range midiIn[0].Events() {
		ch := m.Channel()
		if ch == 0 {
			for _, dst := range midiOut {
				dst.Add(m)
			}
			continue
		}
		if ch <= len(midiOut) {
			midiOut[ch-1].Add(m)
		}
	}
}
