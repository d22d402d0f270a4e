package domain

// MaxOSCPacketSize is the largest encoded OSC packet an OSC port carries.
// Larger packets are dropped.
const MaxOSCPacketSize = 256

// DefaultOSCCapacity is the per-port packet capacity of a block.
const DefaultOSCCapacity = 64

// OSCPacket is one encoded OSC message or bundle stamped with a frame
// offset inside the current block. The payload is stored inline so buffers
// never allocate.
type OSCPacket struct {
	Frame int32
	Size  uint16
	Data  [MaxOSCPacketSize]byte
}

// Bytes returns the encoded packet.
func (p *OSCPacket) Bytes() []byte { return p.Data[:p.Size] }

// OSCBuffer is a fixed-capacity, frame-ordered list of OSC packets.
type OSCBuffer struct {
	packets []OSCPacket
	dropped uint32
}

// NewOSCBuffer allocates a buffer holding up to capacity packets.
func NewOSCBuffer(capacity int) *OSCBuffer {
	if capacity <= 0 {
		capacity = DefaultOSCCapacity
	}
	return &OSCBuffer{packets: make([]OSCPacket, 0, capacity)}
}

// Add copies data into the buffer at frame. It fails without allocating
// when the buffer is full or data exceeds MaxOSCPacketSize.
func (b *OSCBuffer) Add(frame int32, data []byte) bool {
	if len(b.packets) == cap(b.packets) || len(data) > MaxOSCPacketSize {
		b.dropped++
		return false
	}
	b.packets = b.packets[:len(b.packets)+1]
	p := &b.packets[len(b.packets)-1]
	p.Frame = frame
	p.Size = uint16(copy(p.Data[:], data))
	for i := len(b.packets) - 1; i > 0 && b.packets[i-1].Frame > frame; i-- {
		b.packets[i], b.packets[i-1] = b.packets[i-1], b.packets[i]
	}
	return true
}

// Merge adds every packet of other.
func (b *OSCBuffer) Merge(other *OSCBuffer) {
	if other == nil {
		return
	}
	for i := range other.packets {
		p := &other.packets[i]
		b.Add(p.Frame, p.Bytes())
	}
}

// Clear empties the buffer without releasing its storage.
func (b *OSCBuffer) Clear() {
	b.packets = b.packets[:0]
	b.dropped = 0
}

func (b *OSCBuffer) Len() int { return len(b.packets) }

// Packets returns the packets in frame order, valid until the buffer is
// next modified.
func (b *OSCBuffer) Packets() []OSCPacket { return b.packets }

// Dropped returns how many packets were discarded since the last Clear.
func (b *OSCBuffer) Dropped() uint32 { return b.dropped }
