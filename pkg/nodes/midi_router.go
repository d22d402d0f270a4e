package nodes

import (
	"fmt"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// MidiRouterConfig sizes the router and optionally seeds its matrix
// with [input, output] pairs.
type MidiRouterConfig struct {
	Inputs  int      `mapstructure:"inputs"`
	Outputs int      `mapstructure:"outputs"`
	Routes  [][2]int `mapstructure:"routes"`
}

// MidiRouter forwards each MIDI input to any combination of outputs.
// The default is a diagonal 4x4 matrix.
type MidiRouter struct {
	Base
	inputs, outputs int
	matrix          []atomic.Bool
}

func NewMidiRouter() *MidiRouter {
	r := &MidiRouter{}
	r.resize(4, 4, true)
	return r
}

func (r *MidiRouter) resize(ins, outs int, diagonal bool) {
	r.inputs, r.outputs = ins, outs
	r.matrix = make([]atomic.Bool, ins*outs)
	if diagonal {
		for i := 0; i < ins && i < outs; i++ {
			r.matrix[i*outs+i].Store(true)
		}
	}
	r.setLayout(domain.Layout().MidiIns(ins).MidiOuts(outs).Build())
}

func (r *MidiRouter) Configure(props domain.Properties) error {
	cfg := MidiRouterConfig{Inputs: r.inputs, Outputs: r.outputs}
	if err := decodeConfig(props, &cfg); err != nil {
		return err
	}
	if cfg.Inputs < 1 || cfg.Outputs < 1 || cfg.Inputs > 16 || cfg.Outputs > 16 {
		return fmt.Errorf("midi router size %dx%d out of range", cfg.Inputs, cfg.Outputs)
	}
	if cfg.Inputs != r.inputs || cfg.Outputs != r.outputs || cfg.Routes != nil {
		r.resize(cfg.Inputs, cfg.Outputs, cfg.Routes == nil)
	}
	for _, rt := range cfg.Routes {
		if err := r.SetRoute(rt[0], rt[1], true); err != nil {
			return err
		}
	}
	return nil
}

// SetRoute connects or disconnects input in from output out. Safe from any thread.
func (r *MidiRouter) SetRoute(in, out int, on bool) error {
	if in < 0 || in >= r.inputs || out < 0 || out >= r.outputs {
		return fmt.Errorf("midi route %d,%d out of range", in, out)
	}
	r.matrix[in*r.outputs+out].Store(on)
	return nil
}

func (r *MidiRouter) Routed(in, out int) bool {
	if in < 0 || in >= r.inputs || out < 0 || out >= r.outputs {
		return false
	}
	return r.matrix[in*r.outputs+out].Load()
}

func (r *MidiRouter) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	if r.Suspended() {
		passThrough(in, out, midiIn, midiOut)
		return
	}
	for _, dst := range midiOut {
		dst.Clear()
	}
	for i := 0; i < r.inputs && i < len(midiIn); i++ {
		for o := 0; o < r.outputs && o < len(midiOut); o++ {
			if r.matrix[i*r.outputs+o].Load() {
				midiOut[o].Merge(midiIn[i])
			}
		}
	}
}
