package nodes

import (
	"fmt"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// RouterConfig is decoded from an audio router's custom properties.
type RouterConfig struct {
	Inputs  int         `mapstructure:"inputs"`
	Outputs int         `mapstructure:"outputs"`
	Matrix  [][]float32 `mapstructure:"matrix"`
}

const maxRouterChannels = 64

// AudioRouter mixes N audio inputs into M audio outputs through a gain
// matrix. Gain changes are ramped over one block to avoid zipper noise.
type AudioRouter struct {
	Base
	inputs, outputs int
	gains           []Param   // target gains, row major [in][out]
	current         []float32 // audio thread only
}

// NewAudioRouter creates a router with the default 4x4 identity matrix.
func NewAudioRouter() *AudioRouter {
	r := &AudioRouter{}
	r.resize(4, 4)
	return r
}

func (r *AudioRouter) resize(ins, outs int) {
	r.inputs, r.outputs = ins, outs
	r.gains = make([]Param, ins*outs)
	r.current = make([]float32, ins*outs)
	for i := 0; i < ins && i < outs; i++ {
		r.gains[i*outs+i].Set(1)
		r.current[i*outs+i] = 1
	}
	r.setLayout(domain.Layout().AudioIns(ins).AudioOuts(outs).Build())
}

// Configure applies the size and initial matrix. Called before the first Prepare.
func (r *AudioRouter) Configure(props domain.Properties) error {
	cfg := RouterConfig{Inputs: r.inputs, Outputs: r.outputs}
	if err := decodeConfig(props, &cfg); err != nil {
		return err
	}
	if cfg.Inputs < 1 || cfg.Outputs < 1 || cfg.Inputs > maxRouterChannels || cfg.Outputs > maxRouterChannels {
		return fmt.Errorf("audio router size %dx%d out of range", cfg.Inputs, cfg.Outputs)
	}
	if cfg.Inputs != r.inputs || cfg.Outputs != r.outputs {
		r.resize(cfg.Inputs, cfg.Outputs)
	}
	if cfg.Matrix != nil {
		for i := range r.gains {
			r.gains[i].Set(0)
			r.current[i] = 0
		}
		for in, row := range cfg.Matrix {
			for out, g := range row {
				if in < r.inputs && out < r.outputs {
					r.gains[in*r.outputs+out].Set(g)
					r.current[in*r.outputs+out] = g
				}
			}
		}
	}
	return nil
}

// SetGain changes the gain from input in to output out. Safe from any thread.
func (r *AudioRouter) SetGain(in, out int, gain float32) error {
	if in < 0 || in >= r.inputs || out < 0 || out >= r.outputs {
		return fmt.Errorf("router cell %d,%d out of range", in, out)
	}
	r.gains[in*r.outputs+out].Set(gain)
	return nil
}

// Gain returns the target gain of a matrix cell.
func (r *AudioRouter) Gain(in, out int) float32 {
	if in < 0 || in >= r.inputs || out < 0 || out >= r.outputs {
		return 0
	}
	return r.gains[in*r.outputs+out].Get()
}

// Size returns the matrix dimensions.
func (r *AudioRouter) Size() (inputs, outputs int) { return r.inputs, r.outputs }

func (r *AudioRouter) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	if r.Suspended() {
		passThrough(in, out, midiIn, midiOut)
		return
	}
	for _, dst := range out.Audio {
		clear(dst)
	}
	for i := 0; i < r.inputs && i < len(in.Audio); i++ {
		src := in.Audio[i]
		for o := 0; o < r.outputs && o < len(out.Audio); o++ {
			cell := i*r.outputs + o
			target := r.gains[cell].Get()
			start := r.current[cell]
			r.current[cell] = target
			if start == 0 && target == 0 {
				continue
			}
			dst := out.Audio[o]
			if start == target {
				for n, s := range src {
					dst[n] += s * target
				}
				continue
			}
			step := (target - start) / float32(len(src))
			g := start
			for n, s := range src {
				g += step
				dst[n] += s * g
			}
		}
	}
}
