package domain

// MIDI status nibbles used by the built-in nodes.
const (
	MidiNoteOff         = 0x80
	MidiNoteOn          = 0x90
	MidiPolyPressure    = 0xA0
	MidiControlChange   = 0xB0
	MidiProgramChange   = 0xC0
	MidiChannelPressure = 0xD0
	MidiPitchBend       = 0xE0
	MidiSystem          = 0xF0
)

// MidiMessage is a short MIDI message stamped with a frame offset inside
// the current block. It is a value type so buffers never allocate.
type MidiMessage struct {
	Frame int32   `json:"frame"`
	Size  uint8   `json:"size"`
	Data  [3]byte `json:"data"`
}

// NewMidiMessage builds a message from up to three bytes.
func NewMidiMessage(frame int32, data ...byte) MidiMessage {
	m := MidiMessage{Frame: frame}
	m.Size = uint8(copy(m.Data[:], data))
	return m
}

func (m MidiMessage) Status() byte { return m.Data[0] & 0xF0 }

// Channel returns the 1-based MIDI channel, or 0 for system messages.
func (m MidiMessage) Channel() int {
	if m.Data[0] >= MidiSystem {
		return 0
	}
	return int(m.Data[0]&0x0F) + 1
}

// WithChannel returns a copy of m on the given 1-based channel.
func (m MidiMessage) WithChannel(ch int) MidiMessage {
	if m.Data[0] >= MidiSystem || ch < 1 || ch > 16 {
		return m
	}
	m.Data[0] = m.Status() | byte(ch-1)
	return m
}

func (m MidiMessage) IsProgramChange() bool { return m.Status() == MidiProgramChange }

// MidiBuffer is a fixed-capacity, frame-ordered list of MIDI messages.
// Add never allocates; messages beyond capacity are dropped and counted.
type MidiBuffer struct {
	events  []MidiMessage
	dropped uint32
}

// DefaultMidiCapacity is the per-port message capacity of a block.
const DefaultMidiCapacity = 512

// NewMidiBuffer allocates a buffer holding up to capacity messages.
func NewMidiBuffer(capacity int) *MidiBuffer {
	if capacity <= 0 {
		capacity = DefaultMidiCapacity
	}
	return &MidiBuffer{events: make([]MidiMessage, 0, capacity)}
}

// Add inserts m keeping the buffer ordered by frame. Messages with equal
// frames keep their insertion order.
func (b *MidiBuffer) Add(m MidiMessage) bool {
	if len(b.events) == cap(b.events) {
		b.dropped++
		return false
	}
	b.events = append(b.events, m)
	for i := len(b.events) - 1; i > 0 && b.events[i-1].Frame > m.Frame; i-- {
		b.events[i], b.events[i-1] = b.events[i-1], b.events[i]
	}
	return true
}

// Merge adds every message of other.
func (b *MidiBuffer) Merge(other *MidiBuffer) {
	if other == nil {
		return
	}
	for _, m := range other.events {
		b.Add(m)
	}
}

// Clear empties the buffer without releasing its storage.
func (b *MidiBuffer) Clear() {
	b.events = b.events[:0]
	b.dropped = 0
}

func (b *MidiBuffer) Len() int { return len(b.events) }

// Events returns the messages in frame order. The slice is only valid until
// the buffer is next modified.
func (b *MidiBuffer) Events() []MidiMessage { return b.events }

// Dropped returns how many messages were discarded since the last Clear.
func (b *MidiBuffer) Dropped() uint32 { return b.dropped }
