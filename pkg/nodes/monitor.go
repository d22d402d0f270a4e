package nodes

import (
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

const monitorCapacity = 1024

// MidiMonitor passes MIDI through and records every message for display.
// Recording is skipped while bypassed.
type MidiMonitor struct {
	Base
	ring *MidiRing
}

func NewMidiMonitor() *MidiMonitor {
	m := &MidiMonitor{ring: NewMidiRing(monitorCapacity)}
	m.setLayout(domain.Layout().MidiIns(1).MidiOuts(1).Build())
	return m
}

// Drain appends the recorded messages to dst and returns it.
// It must be called from a single goroutine.
func (m *MidiMonitor) Drain(dst []domain.MidiMessage) []domain.MidiMessage {
	for {
		msg, ok := m.ring.Pop()
		if !ok {
			return dst
		}
		dst = append(dst, msg)
	}
}

// Lost returns how many messages were not recorded because nobody drained the monitor.
func (m *MidiMonitor) Lost() uint64 { return m.ring.Lost() }

func (m *MidiMonitor) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	passThrough(in, out, midiIn, midiOut)
	if m.Suspended() || len(midiIn) == 0 {
		return
	}
	for _, msg := range midiIn[0].Events() {
		m.ring.Push(msg)
	}
}
