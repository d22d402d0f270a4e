package ports

import "github.com/aretw0/patchbay/pkg/domain"

// Buffers holds the per-block data of one side (inputs or outputs) of a unit.
// Audio has one slice per audio port in port order, each exactly one block
// long. Control has one value per control port and OSC one packet buffer
// per OSC port.
type Buffers struct {
	Audio   [][]float32
	Control []float32
	OSC     []*domain.OSCBuffer
}

// Unit is the real-time counterpart of a node.
//
// Process runs on the audio thread. Implementations must not allocate,
// block, take locks or panic there. Input buffers are read-only and may be
// shared with other units; output buffers are owned by the unit for the
// duration of the call and are not cleared beforehand.
type Unit interface {
	// Ports reports the unit's channel and bus layout.
	Ports() domain.PortList

	// Prepare is called off the audio thread before the unit first runs,
	// and again whenever the sample rate or block size changes.
	Prepare(sampleRate float64, blockSize int)

	Process(in, out *Buffers, midiIn, midiOut []*domain.MidiBuffer)

	// ReleaseResources is called once the unit can no longer be reached
	// by the audio thread. It must be idempotent.
	ReleaseResources()

	// Suspend toggles bypass. A suspended unit passes audio through or
	// outputs silence depending on its type. Safe to call from any thread.
	Suspend(suspended bool)

	LatencySamples() int
}

// Configurable units accept per-node custom properties before their layout
// is read. Configure runs on the control thread before Prepare.
type Configurable interface {
	Configure(props domain.Properties) error
}

// Device is the set of external buffers a graph exchanges with its host:
// the audio interface for the root graph, the parent's block for a nested
// graph. Fields are written by the audio thread at the start of each block.
type Device struct {
	AudioIn  [][]float32
	AudioOut [][]float32
	MidiIn   *domain.MidiBuffer
	MidiOut  *domain.MidiBuffer
	Frames   int
}

// DeviceBinder is implemented by graph IO units. BindDevice runs on the
// control thread while the render sequence for the unit's graph is built.
type DeviceBinder interface {
	BindDevice(dev *Device)
}

// Renderer runs a complete render sequence for one block against the
// device it was built for.
type Renderer interface {
	Render()
}

// GraphHost is implemented by units that render a nested graph. The child
// renderer is swapped on the audio thread when the parent sequence that
// carries it becomes active.
type GraphHost interface {
	Unit
	Device() *Device
	SetChild(slot *Renderer)
}
