package nodes

import (
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
)

// MidiRing is a single-producer single-consumer queue of MIDI messages.
// One side is the audio thread, the other a control or I/O goroutine.
// Push and Pop never block or allocate.
type MidiRing struct {
	buf  []domain.MidiMessage
	mask uint64
	head atomic.Uint64 // next slot to read
	tail atomic.Uint64 // next slot to write
	lost atomic.Uint64
}

// NewMidiRing creates a ring holding at least size messages.
func NewMidiRing(size int) *MidiRing {
	n := 1
	for n < size {
		n <<= 1
	}
	return &MidiRing{buf: make([]domain.MidiMessage, n), mask: uint64(n - 1)}
}

// Push appends m, or counts it as lost when the ring is full.
func (r *MidiRing) Push(m domain.MidiMessage) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		r.lost.Add(1)
		return false
	}
	r.buf[tail&r.mask] = m
	r.tail.Store(tail + 1)
	return true
}

// Pop removes the oldest message.
func (r *MidiRing) Pop() (domain.MidiMessage, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return domain.MidiMessage{}, false
	}
	m := r.buf[head&r.mask]
	r.head.Store(head + 1)
	return m, true
}

// Len is approximate when called concurrently with Push or Pop.
func (r *MidiRing) Len() int { return int(r.tail.Load() - r.head.Load()) }

// Lost returns how many messages were dropped because the ring was full.
func (r *MidiRing) Lost() uint64 { return r.lost.Load() }
