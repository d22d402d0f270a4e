package nodes

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// ProgramMapConfig maps incoming program numbers (0-127) to outgoing ones.
// A target of -1 swallows the program change.
type ProgramMapConfig struct {
	Programs map[string]int `mapstructure:"programs"`
}

// MidiProgramMap rewrites program change messages through a lookup table.
// All other messages pass through untouched.
type MidiProgramMap struct {
	Base
	table [128]atomic.Int32
	last  atomic.Int32
}

func NewMidiProgramMap() *MidiProgramMap {
	m := &MidiProgramMap{}
	for i := range m.table {
		m.table[i].Store(int32(i))
	}
	m.last.Store(-1)
	m.setLayout(domain.Layout().MidiIns(1).MidiOuts(1).Build())
	return m
}

func (m *MidiProgramMap) Configure(props domain.Properties) error {
	var cfg ProgramMapConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return err
	}
	for k, v := range cfg.Programs {
		in, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("program map key %q: %w", k, err)
		}
		if err := m.SetMapping(in, v); err != nil {
			return err
		}
	}
	return nil
}

// SetMapping routes program in to program out. Safe from any thread.
func (m *MidiProgramMap) SetMapping(in, out int) error {
	if in < 0 || in > 127 || out < -1 || out > 127 {
		return fmt.Errorf("program mapping %d -> %d out of range", in, out)
	}
	m.table[in].Store(int32(out))
	return nil
}

// Mapping returns the target of program in.
func (m *MidiProgramMap) Mapping(in int) int {
	if in < 0 || in > 127 {
		return -1
	}
	return int(m.table[in].Load())
}

// LastProgram returns the most recent incoming program number, or -1.
func (m *MidiProgramMap) LastProgram() int { return int(m.last.Load()) }

func (m *MidiProgramMap) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	if m.Suspended() {
		passThrough(in, out, midiIn, midiOut)
		return
	}
	if len(midiOut) == 0 {
		return
	}
	dst := midiOut[0]
	dst.Clear()
	if len(midiIn) == 0 {
		return
	}
	for _, msg := range midiIn[0].Events() {
		if !msg.IsProgramChange() {
			dst.Add(msg)
			continue
		}
		prog := msg.Data[1] & 0x7F
		m.last.Store(int32(prog))
		target := m.table[prog].Load()
		if target < 0 {
			continue
		}
		msg.Data[1] = byte(target)
		dst.Add(msg)
	}
}
