package nodes

import (
	"fmt"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// IOConfig sets the channel count of an audio IO node.
type IOConfig struct {
	Channels int `mapstructure:"channels"`
}

type deviceRef struct {
	dev atomic.Pointer[ports.Device]
}

func (d *deviceRef) BindDevice(dev *ports.Device) { d.dev.Store(dev) }

// AudioInput exposes the device (or parent block) inputs as outputs.
type AudioInput struct {
	Base
	deviceRef
	channels int
}

// AudioOutput sums its inputs into the device (or parent block) outputs.
type AudioOutput struct {
	Base
	deviceRef
	channels int
}

func NewAudioInput() *AudioInput {
	n := &AudioInput{channels: 2}
	n.setLayout(domain.Layout().AudioOuts(2).Build())
	return n
}

func NewAudioOutput() *AudioOutput {
	n := &AudioOutput{channels: 2}
	n.setLayout(domain.Layout().AudioIns(2).Build())
	return n
}

func ioChannels(props domain.Properties, def int) (int, error) {
	cfg := IOConfig{Channels: def}
	if err := decodeConfig(props, &cfg); err != nil {
		return 0, err
	}
	if cfg.Channels < 1 || cfg.Channels > 64 {
		return 0, fmt.Errorf("io channel count %d out of range", cfg.Channels)
	}
	return cfg.Channels, nil
}

func (n *AudioInput) Configure(props domain.Properties) error {
	ch, err := ioChannels(props, n.channels)
	if err != nil {
		return err
	}
	n.channels = ch
	n.setLayout(domain.Layout().AudioOuts(ch).Build())
	return nil
}

func (n *AudioOutput) Configure(props domain.Properties) error {
	ch, err := ioChannels(props, n.channels)
	if err != nil {
		return err
	}
	n.channels = ch
	n.setLayout(domain.Layout().AudioIns(ch).Build())
	return nil
}

// Bypassing an input node silences it.
func (n *AudioInput) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	dev := n.dev.Load()
	for i, dst := range out.Audio {
		if dev == nil || n.Suspended() || i >= len(dev.AudioIn) {
			clear(dst)
			continue
		}
		copy(dst, dev.AudioIn[i])
	}
}

// Bypassing an output node mutes it.
func (n *AudioOutput) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	dev := n.dev.Load()
	if dev == nil || n.Suspended() {
		return
	}
	for i, src := range in.Audio {
		if i >= len(dev.AudioOut) {
			return
		}
		dst := dev.AudioOut[i]
		for k := range dst {
			if k < len(src) {
				dst[k] += src[k]
			}
		}
	}
}

// MidiInput exposes the device MIDI input.
type MidiInput struct {
	Base
	deviceRef
}

// MidiOutput merges into the device MIDI output.
type MidiOutput struct {
	Base
	deviceRef
}

func NewMidiInput() *MidiInput {
	n := &MidiInput{}
	n.setLayout(domain.Layout().MidiOuts(1).Build())
	return n
}

func NewMidiOutput() *MidiOutput {
	n := &MidiOutput{}
	n.setLayout(domain.Layout().MidiIns(1).Build())
	return n
}

func (n *MidiInput) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	if len(midiOut) == 0 {
		return
	}
	midiOut[0].Clear()
	if dev := n.dev.Load(); dev != nil && !n.Suspended() {
		midiOut[0].Merge(dev.MidiIn)
	}
}

func (n *MidiOutput) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	dev := n.dev.Load()
	if dev == nil || dev.MidiOut == nil || n.Suspended() || len(midiIn) == 0 {
		return
	}
	dev.MidiOut.Merge(midiIn[0])
}
